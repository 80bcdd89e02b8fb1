// Package workflow implements the facility request approval workflow and the
// promotion of approved requests into the administrative tree and registry.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/apierr"
	"github.com/openhfr/facility-registry/pkg/dbtx"
	"github.com/openhfr/facility-registry/pkg/hierarchy"
	"github.com/openhfr/facility-registry/pkg/identifier"
	"github.com/openhfr/facility-registry/pkg/registry"
)

// Events published after a request changes canonical state.
const (
	EventFacilityCreated     = "facility.created"
	EventFacilityUpdated     = "facility.updated"
	EventFacilityDeactivated = "facility.deactivated"
)

// DefaultBroadcastTimeout bounds one post-commit notification.
const DefaultBroadcastTimeout = 30 * time.Second

// Notifier delivers an event to external subscribers. Errors are logged by
// the service and never affect the committed request.
type Notifier interface {
	Notify(ctx context.Context, event string, payload any) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event string, payload any) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event string, payload any) error {
	return f(ctx, event, payload)
}

// Caller is the authenticated identity acting on a request.
type Caller struct {
	UserID string
	Role   string
}

// FacilityEvent is the payload broadcast for facility events.
type FacilityEvent struct {
	RequestID          string      `json:"requestId"`
	RequestType        RequestType `json:"requestType"`
	Status             Status      `json:"status"`
	FacilityID         *uint       `json:"facilityId,omitempty"`
	RegistryIdentifier string      `json:"registryIdentifier,omitempty"`
	registry.Details
	RegionID    *uint  `json:"regionId,omitempty"`
	DistrictID  *uint  `json:"districtId,omitempty"`
	SubcountyID *uint  `json:"subcountyId,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SubmitInput is the body of a new request.
type SubmitInput struct {
	RequestType RequestType `json:"requestType"`
	registry.Details
	RegionID    *uint    `json:"regionId,omitempty"`
	DistrictID  *uint    `json:"districtId,omitempty"`
	SubcountyID *uint    `json:"subcountyId,omitempty"`
	FacilityID  *uint    `json:"facilityId,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Documents   []string `json:"documents,omitempty"`
}

// Service runs the request workflow.
type Service struct {
	db       *gorm.DB
	store    *Store
	tree     *hierarchy.Manager
	registry *registry.Store
	ids      *identifier.Generator

	notifier         Notifier
	metrics          *Metrics
	logger           *slog.Logger
	broadcastTimeout time.Duration

	inflight sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the post-commit event notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMetrics enables workflow metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBroadcastTimeout bounds each post-commit notification.
func WithBroadcastTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.broadcastTimeout = d
		}
	}
}

// NewService creates a Service. Requests, tree and registry must share db.
func NewService(db *gorm.DB, tree *hierarchy.Manager, reg *registry.Store, ids *identifier.Generator, opts ...Option) *Service {
	s := &Service{
		db:               db,
		store:            NewStore(db),
		tree:             tree,
		registry:         reg,
		ids:              ids,
		logger:           slog.Default(),
		broadcastTimeout: DefaultBroadcastTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the request store.
func (s *Service) Store() *Store { return s.store }

// Submit files a new request in status initiated.
func (s *Service) Submit(ctx context.Context, caller Caller, in SubmitInput) (*FacilityRequestRecord, error) {
	if strings.TrimSpace(caller.UserID) == "" {
		return nil, apierr.New(apierr.KindUnauthorized, apierr.CodeUnauthorized, "invalid credentials")
	}
	rec := &FacilityRequestRecord{
		ID:          uuid.NewString(),
		RequestType: in.RequestType,
		Status:      StatusInitiated,
		Role:        RoleFromCaller(caller.Role),
		Details:     in.Details,
		RegionID:    in.RegionID,
		DistrictID:  in.DistrictID,
		SubcountyID: in.SubcountyID,
		FacilityID:  in.FacilityID,
		Reason:      strings.TrimSpace(in.Reason),
		Documents:   JSONStringSlice(in.Documents),
		SubmittedBy: caller.UserID,
	}

	err := dbtx.Run(ctx, s.db, func(ctx context.Context) error {
		if err := s.validateSubmission(ctx, rec); err != nil {
			return err
		}
		if err := s.store.Create(ctx, rec); err != nil {
			return err
		}
		return s.store.AppendTracking(ctx, &StatusTrackingRecord{
			RequestID: rec.ID,
			Status:    StatusInitiated,
			Comments:  "submitted",
			OwnerID:   caller.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("facility request submitted", "requestID", rec.ID, "type", rec.RequestType, "role", rec.Role)
	return s.store.Get(ctx, rec.ID)
}

func (s *Service) validateSubmission(ctx context.Context, rec *FacilityRequestRecord) error {
	switch rec.RequestType {
	case TypeAddition:
		if err := rec.Details.Validate(); err != nil {
			return err
		}
		if rec.SubcountyID == nil {
			return apierr.Validation(apierr.CodeInvalidInput, "an addition requires subcountyId")
		}
		level, err := s.tree.FacilityLevel(ctx)
		if err != nil {
			return err
		}
		if err := s.tree.ValidateParentRule(ctx, level.ID, rec.SubcountyID); err != nil {
			return err
		}
		return s.fillPlacement(ctx, rec, *rec.SubcountyID)

	case TypeUpdate, TypeDeactivation:
		unit, err := s.facilityUnit(ctx, rec.FacilityID)
		if err != nil {
			return err
		}
		if rec.RequestType == TypeDeactivation {
			if rec.Reason == "" {
				return apierr.Validation(apierr.CodeInvalidInput, "a deactivation requires a reason")
			}
			if strings.TrimSpace(rec.Details.Name) == "" {
				rec.Details.Name = unit.Name
			}
			rec.SubcountyID = unit.ParentID
		} else {
			if err := rec.Details.Validate(); err != nil {
				return err
			}
			if rec.SubcountyID != nil {
				if err := s.tree.ValidateParentRule(ctx, unit.LevelID, rec.SubcountyID); err != nil {
					return err
				}
			}
		}
		target := rec.SubcountyID
		if target == nil {
			target = unit.ParentID
		}
		if target != nil {
			return s.fillPlacement(ctx, rec, *target)
		}
		return nil

	default:
		return apierr.Validation(apierr.CodeInvalidInput, "unknown request type %q", rec.RequestType)
	}
}

// fillPlacement sets the region and district a request targets from the
// ancestors of its subcounty, unless the submitter supplied them.
func (s *Service) fillPlacement(ctx context.Context, rec *FacilityRequestRecord, subcountyID uint) error {
	region, district, err := s.ancestry(ctx, subcountyID)
	if err != nil {
		return err
	}
	if rec.DistrictID == nil {
		rec.DistrictID = district
	}
	if rec.RegionID == nil {
		rec.RegionID = region
	}
	return nil
}

// ancestry returns the region and district above a subcounty: its grandparent
// and parent. Either is nil when the tree is too shallow.
func (s *Service) ancestry(ctx context.Context, subcountyID uint) (region, district *uint, err error) {
	ancestors, err := s.tree.Ancestors(ctx, subcountyID)
	if err != nil {
		return nil, nil, err
	}
	if n := len(ancestors); n >= 1 {
		id := ancestors[n-1].ID
		district = &id
		if n >= 2 {
			rid := ancestors[n-2].ID
			region = &rid
		}
	}
	return region, district, nil
}

// facilityUnit returns the unit facilityID names, which must sit at the
// facility level.
func (s *Service) facilityUnit(ctx context.Context, facilityID *uint) (*hierarchy.UnitRecord, error) {
	if facilityID == nil {
		return nil, apierr.Validation(apierr.CodeInvalidTarget, "facilityId is required")
	}
	unit, err := s.tree.Store().GetUnit(ctx, *facilityID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, apierr.Validation(apierr.CodeInvalidTarget, "facility %d does not exist", *facilityID)
	}
	level, err := s.tree.FacilityLevel(ctx)
	if err != nil {
		return nil, err
	}
	if unit.LevelID != level.ID {
		return nil, apierr.Validation(apierr.CodeInvalidTarget,
			"unit %d is not at the %s level", unit.ID, level.Name)
	}
	return unit, nil
}

// Get returns a request or a not-found error.
func (s *Service) Get(ctx context.Context, id string) (*FacilityRequestRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apierr.NotFound("request", id)
	}
	return rec, nil
}

// List returns one page of requests.
func (s *Service) List(ctx context.Context, f ListFilter) ([]FacilityRequestRecord, string, int, error) {
	recs, next, total, err := s.store.List(ctx, f)
	if errors.Is(err, ErrInvalidPageToken) {
		return nil, "", 0, apierr.Wrap(apierr.KindValidation, apierr.CodeInvalidInput, err, "invalid page token")
	}
	return recs, next, total, err
}

// History returns the status history of a request, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]StatusTrackingRecord, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListTracking(ctx, id)
}

// Approve advances a request one step. Leaving moh_verified promotes the
// request; promotion, status change and history row commit together, and a
// failed promotion leaves the request in moh_verified.
func (s *Service) Approve(ctx context.Context, id string, caller Caller, comments string) (*FacilityRequestRecord, error) {
	var (
		from, to Status
		event    string
		payload  *FacilityEvent
		promoted RequestType
	)
	err := dbtx.Run(ctx, s.db, func(ctx context.Context) error {
		req, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		from = req.Status
		to, err = NextStatus(req.Status, req.Role)
		if err != nil {
			return err
		}
		// Claim the transition before promoting so that of two concurrent
		// approvals only one ever reaches promotion.
		claimed, err := s.store.TransitionStatus(ctx, id, from, to)
		if err != nil {
			return err
		}
		if !claimed {
			return conflictingUpdate(id, from, to)
		}
		if to == StatusPublished {
			promoted = req.RequestType
			event, payload, err = s.promote(ctx, req)
			if err != nil {
				return err
			}
		}
		approver := caller.UserID
		return s.store.AppendTracking(ctx, &StatusTrackingRecord{
			RequestID:  id,
			Status:     to,
			Comments:   comments,
			OwnerID:    req.SubmittedBy,
			ApprovedBy: &approver,
		})
	})
	// Counted after commit so a failed history write or commit is a failure.
	if promoted != "" {
		s.metrics.observePromotion(promoted, err)
	}
	if err != nil {
		if to == StatusPublished && !apierr.Is(err, apierr.KindConflict) {
			s.logger.Error("promotion failed", "requestID", id, "error", err)
		}
		return nil, err
	}
	s.metrics.observeTransition(from, to)
	s.logger.Info("facility request approved", "requestID", id, "from", from, "to", to, "approver", caller.UserID)

	if event != "" {
		s.notify(event, payload)
	}
	return s.Get(ctx, id)
}

// Reject moves a non-terminal request to rejected and broadcasts a
// deactivation event after commit.
func (s *Service) Reject(ctx context.Context, id string, caller Caller, comments string) (*FacilityRequestRecord, error) {
	var from Status
	err := dbtx.Run(ctx, s.db, func(ctx context.Context) error {
		req, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		from = req.Status
		if err := CanReject(from); err != nil {
			return err
		}
		claimed, err := s.store.TransitionStatus(ctx, id, from, StatusRejected)
		if err != nil {
			return err
		}
		if !claimed {
			return conflictingUpdate(id, from, StatusRejected)
		}
		rejecter := caller.UserID
		return s.store.AppendTracking(ctx, &StatusTrackingRecord{
			RequestID:  id,
			Status:     StatusRejected,
			Comments:   comments,
			OwnerID:    req.SubmittedBy,
			RejectedBy: &rejecter,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.observeTransition(from, StatusRejected)
	s.logger.Info("facility request rejected", "requestID", id, "from", from, "rejecter", caller.UserID)

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	payload := eventFor(rec)
	payload.Reason = strings.TrimSpace(comments)
	if payload.Reason == "" {
		payload.Reason = rec.Reason
	}
	s.notify(EventFacilityDeactivated, payload)
	return rec, nil
}

// Delete removes a request and its history. Published requests stay.
func (s *Service) Delete(ctx context.Context, id string) error {
	return dbtx.Run(ctx, s.db, func(ctx context.Context) error {
		req, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == StatusPublished {
			return apierr.Conflict(apierr.CodeInvalidTransition, "published request %s cannot be deleted", id)
		}
		return s.store.Delete(ctx, id)
	})
}

// Wait blocks until every post-commit notification has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// promote writes the canonical state for a request leaving moh_verified. It
// runs inside the approval transaction.
func (s *Service) promote(ctx context.Context, req *FacilityRequestRecord) (string, *FacilityEvent, error) {
	switch req.RequestType {
	case TypeAddition:
		return s.promoteAddition(ctx, req)
	case TypeUpdate:
		return s.promoteUpdate(ctx, req)
	case TypeDeactivation:
		payload := eventFor(req)
		payload.Status = StatusPublished
		if req.FacilityID != nil {
			rec, err := s.registry.GetByFacilityID(ctx, *req.FacilityID)
			if err != nil {
				return "", nil, err
			}
			if rec != nil {
				payload.RegistryIdentifier = rec.RegistryIdentifier
			}
		}
		return EventFacilityDeactivated, payload, nil
	default:
		return "", nil, apierr.Validation(apierr.CodeInvalidInput, "unknown request type %q", req.RequestType)
	}
}

func (s *Service) promoteAddition(ctx context.Context, req *FacilityRequestRecord) (string, *FacilityEvent, error) {
	if req.SubcountyID == nil {
		return "", nil, apierr.Validation(apierr.CodeInvalidTarget, "request %s has no subcounty", req.ID)
	}
	level, err := s.tree.FacilityLevel(ctx)
	if err != nil {
		return "", nil, err
	}
	unit, err := s.tree.CreateUnit(ctx, hierarchy.CreateUnitInput{
		Name:     req.Details.Name,
		LevelID:  level.ID,
		ParentID: req.SubcountyID,
	})
	if err != nil {
		return "", nil, err
	}
	ident, err := s.ids.Generate(unit.ID)
	if err != nil {
		return "", nil, err
	}
	region, district, err := s.ancestry(ctx, *req.SubcountyID)
	if err != nil {
		return "", nil, err
	}
	rec := &registry.Record{
		FacilityID:         unit.ID,
		RegistryIdentifier: ident,
		Details:            req.Details,
		RegionID:           region,
		DistrictID:         district,
		SubcountyID:        req.SubcountyID,
		LastRequestID:      req.ID,
	}
	if err := s.registry.Create(ctx, rec); err != nil {
		return "", nil, err
	}
	if err := s.store.SetPromotionResult(ctx, req.ID, unit.ID, ident); err != nil {
		return "", nil, err
	}
	return EventFacilityCreated, eventFromRecord(req, rec), nil
}

// promoteUpdate applies an update in place. Only the subcounty may re-parent
// the facility; region and district on the request are informational.
func (s *Service) promoteUpdate(ctx context.Context, req *FacilityRequestRecord) (string, *FacilityEvent, error) {
	unit, err := s.facilityUnit(ctx, req.FacilityID)
	if err != nil {
		return "", nil, err
	}
	if req.SubcountyID != nil && (unit.ParentID == nil || *unit.ParentID != *req.SubcountyID) {
		if unit, err = s.tree.MoveUnit(ctx, unit.ID, req.SubcountyID); err != nil {
			return "", nil, err
		}
	}
	if unit.Name != req.Details.Name {
		name := req.Details.Name
		if unit, err = s.tree.UpdateUnit(ctx, unit.ID, hierarchy.UpdateUnitInput{Name: &name}); err != nil {
			return "", nil, err
		}
	}

	rec, err := s.registry.GetByFacilityID(ctx, unit.ID)
	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		s.logger.Warn("updated facility has no registry record", "requestID", req.ID, "facilityID", unit.ID)
		payload := eventFor(req)
		payload.Status = StatusPublished
		return EventFacilityUpdated, payload, nil
	}

	rec.Details = req.Details
	rec.SubcountyID = unit.ParentID
	rec.RegionID, rec.DistrictID = nil, nil
	if unit.ParentID != nil {
		if rec.RegionID, rec.DistrictID, err = s.ancestry(ctx, *unit.ParentID); err != nil {
			return "", nil, err
		}
	}
	rec.LastRequestID = req.ID
	if err := s.registry.Update(ctx, rec); err != nil {
		return "", nil, err
	}
	if err := s.store.SetPromotionResult(ctx, req.ID, unit.ID, rec.RegistryIdentifier); err != nil {
		return "", nil, err
	}
	return EventFacilityUpdated, eventFromRecord(req, rec), nil
}

func (s *Service) notify(event string, payload *FacilityEvent) {
	if s.notifier == nil {
		return
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.broadcastTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, event, payload); err != nil {
			s.logger.Warn("facility event delivery incomplete",
				"event", event, "requestID", payload.RequestID, "error", err)
		}
	}()
}

func conflictingUpdate(id string, from, to Status) error {
	terr := &TransitionError{From: from, To: to, Message: "request " + id + " was modified concurrently"}
	return apierr.Wrap(apierr.KindConflict, apierr.CodeInvalidTransition, terr, "%s", terr.Message)
}

func eventFor(req *FacilityRequestRecord) *FacilityEvent {
	return &FacilityEvent{
		RequestID:          req.ID,
		RequestType:        req.RequestType,
		Status:             req.Status,
		FacilityID:         req.FacilityID,
		RegistryIdentifier: req.RegistryIdentifier,
		Details:            req.Details,
		RegionID:           req.RegionID,
		DistrictID:         req.DistrictID,
		SubcountyID:        req.SubcountyID,
		Reason:             req.Reason,
	}
}

func eventFromRecord(req *FacilityRequestRecord, rec *registry.Record) *FacilityEvent {
	facilityID := rec.FacilityID
	return &FacilityEvent{
		RequestID:          req.ID,
		RequestType:        req.RequestType,
		Status:             StatusPublished,
		FacilityID:         &facilityID,
		RegistryIdentifier: rec.RegistryIdentifier,
		Details:            rec.Details,
		RegionID:           rec.RegionID,
		DistrictID:         rec.DistrictID,
		SubcountyID:        rec.SubcountyID,
	}
}
