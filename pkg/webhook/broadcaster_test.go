package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedCall struct {
	path   string
	apiKey string
	alg    string
	sigOK  bool
	env    Envelope
}

// subscriber starts a test server that checks signatures against secret.
func subscriber(t *testing.T, secret string, status int) (*httptest.Server, *[]capturedCall) {
	t.Helper()
	var mu sync.Mutex
	calls := []capturedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env Envelope
		_ = json.Unmarshal(body, &env)
		mu.Lock()
		calls = append(calls, capturedCall{
			path:   r.URL.Path,
			apiKey: r.Header.Get(HeaderAPIKey),
			alg:    r.Header.Get(HeaderSignatureAlg),
			sigOK:  Verify(secret, body, r.Header.Get(HeaderSignature)),
			env:    env,
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// hungSubscriber never answers until the test ends.
func hungSubscriber(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}

func TestPushToSystem_WireContract(t *testing.T) {
	srv, calls := subscriber(t, "s3cret", http.StatusOK)
	b := NewBroadcaster()

	res := b.PushToSystem(context.Background(), SystemRecord{
		ID: "sys-1", Name: "DHIS2", CallbackURL: srv.URL + "/", APIKey: "key-1", Secret: "s3cret", IsActive: true,
	}, EventFacilityCreated, map[string]any{"identifier": "HF000001"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/webhook", call.path)
	assert.Equal(t, "key-1", call.apiKey)
	assert.Equal(t, SignatureAlg, call.alg)
	assert.True(t, call.sigOK)
	assert.Equal(t, EventFacilityCreated, call.env.Event)
	assert.JSONEq(t, `{"identifier":"HF000001"}`, string(call.env.Data))
	_, err := time.Parse(time.RFC3339, call.env.Timestamp)
	assert.NoError(t, err)
}

func TestBroadcast_OneTimeoutDoesNotBlockOthers(t *testing.T) {
	okA, callsA := subscriber(t, "secret-a", http.StatusOK)
	okB, callsB := subscriber(t, "secret-b", http.StatusAccepted)
	hung := hungSubscriber(t)
	inactive, callsInactive := subscriber(t, "secret-d", http.StatusOK)

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	b := NewBroadcaster(WithTimeout(200*time.Millisecond), WithMetrics(m))

	systems := []SystemRecord{
		{ID: "a", Name: "A", CallbackURL: okA.URL, APIKey: "ka", Secret: "secret-a", IsActive: true},
		{ID: "b", Name: "B", CallbackURL: okB.URL, APIKey: "kb", Secret: "secret-b", IsActive: true},
		{ID: "c", Name: "C", CallbackURL: hung.URL, APIKey: "kc", Secret: "secret-c", IsActive: true},
		{ID: "d", Name: "D", CallbackURL: inactive.URL, APIKey: "kd", Secret: "secret-d", IsActive: false},
	}

	start := time.Now()
	summary := b.Broadcast(context.Background(), systems, EventFacilityUpdated, map[string]int{"facilityId": 3})
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, 2, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)
	require.Len(t, summary.Results, 3)
	assert.False(t, summary.Results[2].Success)
	assert.NotEmpty(t, summary.Results[2].Error)

	require.Len(t, *callsA, 1)
	require.Len(t, *callsB, 1)
	assert.True(t, (*callsA)[0].sigOK)
	assert.True(t, (*callsB)[0].sigOK)
	assert.Empty(t, *callsInactive)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(EventFacilityUpdated, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues(EventFacilityUpdated, "failure")))
}

func TestBroadcast_Non2xxIsFailure(t *testing.T) {
	srv, _ := subscriber(t, "x", http.StatusInternalServerError)
	b := NewBroadcaster()
	summary := b.Broadcast(context.Background(), []SystemRecord{
		{ID: "a", Name: "A", CallbackURL: srv.URL, APIKey: "k", Secret: "x", IsActive: true},
	}, EventFacilityCreated, nil)
	assert.Equal(t, 0, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, http.StatusInternalServerError, summary.Results[0].StatusCode)
}

func TestBroadcast_NoActiveSystems(t *testing.T) {
	summary := NewBroadcaster().Broadcast(context.Background(), nil, EventFacilityCreated, nil)
	assert.Zero(t, summary.SuccessCount)
	assert.Zero(t, summary.FailedCount)
	assert.Empty(t, summary.Results)
}

func TestBroadcast_UnencodablePayloadFailsEverySystem(t *testing.T) {
	summary := NewBroadcaster().Broadcast(context.Background(), []SystemRecord{
		{ID: "a", IsActive: true}, {ID: "b", IsActive: true},
	}, EventFacilityCreated, map[string]any{"bad": make(chan int)})
	assert.Equal(t, 2, summary.FailedCount)
}
