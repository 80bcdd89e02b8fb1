package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	g := Default()

	tests := []struct {
		id   uint
		want string
	}{
		{1, "HF000001"},
		{42, "HF000042"},
		{999999, "HF999999"},
		{1234567, "HF1234567"},
	}
	for _, tt := range tests {
		got, err := g.Generate(tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestGenerate_ZeroID(t *testing.T) {
	_, err := Default().Generate(0)
	assert.Error(t, err)
}

func TestGenerate_Deterministic(t *testing.T) {
	g, err := New("UG-", 8)
	require.NoError(t, err)

	a, err := g.Generate(77)
	require.NoError(t, err)
	b, err := g.Generate(77)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "UG-00000077", a)
}

func TestParse_RoundTrip(t *testing.T) {
	g := Default()
	for _, id := range []uint{1, 10, 123456, 9876543} {
		code, err := g.Generate(id)
		require.NoError(t, err)
		got, err := g.Parse(code)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestParse_Malformed(t *testing.T) {
	g := Default()
	for _, in := range []string{"", "HF", "XX000001", "HF12", "HF00000a", "HF000000"} {
		_, err := g.Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", 6)
	assert.Error(t, err)
	_, err = New("HF1", 6)
	assert.Error(t, err)
	_, err = New("HF", 0)
	assert.Error(t, err)
}
