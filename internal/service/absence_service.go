package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/observability/metrics"
	"github.com/aryan0dhankhar/farmorders/internal/observability/tracing"
	"github.com/aryan0dhankhar/farmorders/internal/security"
)

// AbsenceService manages absence requests
type AbsenceService struct {
	absences domain.AbsenceRepository
	deps     Deps
}

// NewAbsenceService creates a new absence service
func NewAbsenceService(absences domain.AbsenceRepository, deps Deps) *AbsenceService {
	return &AbsenceService{absences: absences, deps: deps.withDefaults()}
}

// CreateAbsence files a pending request owned by the actor
func (s *AbsenceService) CreateAbsence(ctx context.Context, actor domain.Actor, start, end time.Time, reason string) (*domain.Absence, error) {
	ctx, span := tracing.Start(ctx, "AbsenceService.CreateAbsence")
	var err error
	defer func() { tracing.End(span, err) }()

	if err = s.deps.Authz.Authorize(actor, security.PermRequestAbsence); err != nil {
		return nil, err
	}
	absence := &domain.Absence{
		ID:          uuid.NewString(),
		UserID:      actor.UserID,
		Username:    actor.Username,
		StartDate:   domain.Day(start),
		EndDate:     domain.Day(end),
		Reason:      strings.TrimSpace(reason),
		Status:      domain.AbsencePending,
		RequestedAt: s.deps.Now().UTC(),
	}
	if err = absence.Validate(); err != nil {
		return nil, err
	}
	err = s.absences.Create(ctx, absence)
	s.deps.Audit.LogResult(ctx, actor, "create", "absence", absence.ID, err)
	if err != nil {
		err = fmt.Errorf("create absence: %w", err)
		return nil, err
	}
	metrics.ObserveAbsence(string(domain.AbsencePending))
	s.deps.Events.Publish(ctx, events.TopicAbsences, events.ActionCreated, absence.ID)
	s.deps.Logger.Info("absence requested",
		slog.String("absence_id", absence.ID),
		slog.String("user_id", actor.UserID),
		slog.String("start", domain.FormatDate(absence.StartDate)),
		slog.String("end", domain.FormatDate(absence.EndDate)),
	)
	return absence, nil
}

// ApproveAbsence approves a pending request
func (s *AbsenceService) ApproveAbsence(ctx context.Context, actor domain.Actor, id string) (*domain.Absence, error) {
	return s.decide(ctx, actor, id, domain.AbsenceApproved)
}

// RejectAbsence rejects a pending request
func (s *AbsenceService) RejectAbsence(ctx context.Context, actor domain.Actor, id string) (*domain.Absence, error) {
	return s.decide(ctx, actor, id, domain.AbsenceRejected)
}

// decide moves a pending request to status; decided requests stay as they are
func (s *AbsenceService) decide(ctx context.Context, actor domain.Actor, id string, status domain.AbsenceStatus) (*domain.Absence, error) {
	ctx, span := tracing.Start(ctx, "AbsenceService.Decide",
		attribute.String("absence_id", id),
		attribute.String("status", string(status)),
	)
	var err error
	defer func() { tracing.End(span, err) }()

	if err = s.deps.Authz.Authorize(actor, security.PermDecideAbsence); err != nil {
		return nil, err
	}
	var absence *domain.Absence
	if absence, err = s.absences.GetByID(ctx, id); err != nil {
		return nil, err
	}
	if err = absence.Decide(status, actor.UserID, s.deps.Now().UTC()); err != nil {
		return nil, err
	}
	err = s.absences.UpdateDecision(ctx, absence)
	s.deps.Audit.LogResult(ctx, actor, string(status), "absence", id, err)
	if err != nil {
		err = fmt.Errorf("update absence %s: %w", id, err)
		return nil, err
	}
	metrics.ObserveAbsence(string(status))
	s.deps.Events.Publish(ctx, events.TopicAbsences, events.ActionUpdated, id)
	s.deps.Logger.Info("absence decided",
		slog.String("absence_id", id),
		slog.String("status", string(status)),
		slog.String("decided_by", actor.UserID),
	)
	return absence, nil
}

// ListAbsences returns all requests for admins and the actor's own otherwise, newest first
func (s *AbsenceService) ListAbsences(ctx context.Context, actor domain.Actor) ([]*domain.Absence, error) {
	if err := s.deps.Authz.Authorize(actor, security.PermRequestAbsence); err != nil {
		return nil, err
	}
	if s.deps.Authz.HasPermission(actor.Role, security.PermViewAllAbsences) {
		return s.absences.List(ctx)
	}
	return s.absences.ListByUser(ctx, actor.UserID)
}

// GetAbsence returns one request the actor may see
func (s *AbsenceService) GetAbsence(ctx context.Context, actor domain.Actor, id string) (*domain.Absence, error) {
	absence, err := s.absences.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	perm := security.ResourcePermission{ResourceType: security.ResourceAbsence, ResourceID: id, OwnerID: absence.UserID}
	if err := s.deps.Authz.ValidateResourceAccess(actor, perm); err != nil {
		return nil, err
	}
	return absence, nil
}
