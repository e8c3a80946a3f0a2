package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	exprvm "github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/aryan0dhankhar/farmorders/internal/catalog"
	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/featureflags"
	"github.com/aryan0dhankhar/farmorders/internal/observability/metrics"
	"github.com/aryan0dhankhar/farmorders/internal/observability/tracing"
	"github.com/aryan0dhankhar/farmorders/internal/security"
)

// NewOrder is the input of CreateOrder
type NewOrder struct {
	Items      []domain.OrderItem
	StartDate  time.Time
	Deadline   time.Time
	AutoAssign bool
	Notes      string
}

// OrderService manages the order lifecycle and per-member progress
type OrderService struct {
	orders  domain.OrderRepository
	users   domain.UserRepository
	filters *exprFilters
	deps    Deps
}

// NewOrderService creates a new order service
func NewOrderService(orders domain.OrderRepository, users domain.UserRepository, deps Deps) *OrderService {
	return &OrderService{
		orders:  orders,
		users:   users,
		filters: newExprFilters(),
		deps:    deps.withDefaults(),
	}
}

// CreateOrder validates and stores a new order. With AutoAssign every
// farmer gets an accepted progress record and the order starts in progress.
func (s *OrderService) CreateOrder(ctx context.Context, actor domain.Actor, in NewOrder) (*domain.Order, error) {
	ctx, span := tracing.Start(ctx, "OrderService.CreateOrder", attribute.Bool("auto_assign", in.AutoAssign))
	var err error
	defer func() {
		metrics.ObserveOrderOperation("create", err)
		tracing.End(span, err)
	}()

	if err = s.deps.Authz.Authorize(actor, security.PermManageOrders); err != nil {
		return nil, err
	}

	now := s.deps.Now().UTC()
	order := &domain.Order{
		ID:         uuid.NewString(),
		Items:      normalizeItems(in.Items),
		StartDate:  domain.Day(in.StartDate),
		Deadline:   domain.Day(in.Deadline),
		Status:     domain.OrderOpen,
		AutoAssign: in.AutoAssign,
		CreatedBy:  actor.UserID,
		CreatedAt:  now,
		Notes:      strings.TrimSpace(in.Notes),
	}
	if err = order.Validate(); err != nil {
		return nil, err
	}
	for _, item := range order.Items {
		if _, ok := catalog.Lookup(item.BlockID); !ok {
			err = fmt.Errorf("%w: unknown block %q", domain.ErrBadArguments, item.BlockID)
			return nil, err
		}
	}

	if in.AutoAssign {
		var users []*domain.User
		users, err = s.users.List(ctx)
		if err != nil {
			err = fmt.Errorf("list users for auto-assign: %w", err)
			return nil, err
		}
		for _, u := range users {
			if u.Role != domain.RoleFarmer {
				continue
			}
			order.Progress = append(order.Progress, &domain.Progress{
				ID:        uuid.NewString(),
				OrderID:   order.ID,
				UserID:    u.ID,
				Status:    domain.ProgressAccepted,
				CreatedAt: now,
			})
		}
		if len(order.Progress) > 0 {
			order.Status = domain.OrderInProgress
		}
	}

	err = s.orders.Create(ctx, order)
	s.deps.Audit.LogResult(ctx, actor, "create", "order", order.ID, err)
	if err != nil {
		err = fmt.Errorf("create order: %w", err)
		return nil, err
	}

	s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionCreated, order.ID)
	s.deps.Logger.Info("order created",
		slog.String("order_id", order.ID),
		slog.Int("items", len(order.Items)),
		slog.Int("total_ordered", order.TotalOrdered()),
		slog.Int("assigned", len(order.Progress)),
		slog.String("created_by", actor.UserID),
	)
	return order, nil
}

func normalizeItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		item.BlockID = strings.TrimSpace(item.BlockID)
		out = append(out, item)
	}
	return out
}

// GetOrder returns one order with items and progress
func (s *OrderService) GetOrder(ctx context.Context, actor domain.Actor, id string) (*domain.Order, error) {
	if err := s.deps.Authz.Authorize(actor, security.PermViewOrders); err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, id)
}

// ListOrders returns orders newest first, narrowed by filter
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Actor, filter OrderFilter) ([]*domain.Order, error) {
	if err := s.deps.Authz.Authorize(actor, security.PermViewOrders); err != nil {
		return nil, err
	}
	if filter.Status != "" && filter.Status != domain.DisplayOverdue && !domain.OrderStatus(filter.Status).Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrBadArguments, filter.Status)
	}

	var program *exprvm.Program
	if expression := strings.TrimSpace(filter.Expr); expression != "" {
		p, err := s.filters.compile(expression)
		if err != nil {
			return nil, err
		}
		program = p
	}

	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	now := s.deps.Now()
	out := make([]*domain.Order, 0, len(orders))
	for _, o := range orders {
		if !filter.matches(o, actor, now) {
			continue
		}
		if program != nil {
			ok, err := s.filters.match(program, newOrderEnv(o, now))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, o)
	}
	return out, nil
}

// DeleteOrder removes the order with its items and progress
func (s *OrderService) DeleteOrder(ctx context.Context, actor domain.Actor, id string) error {
	ctx, span := tracing.Start(ctx, "OrderService.DeleteOrder", attribute.String("order_id", id))
	var err error
	defer func() {
		metrics.ObserveOrderOperation("delete", err)
		tracing.End(span, err)
	}()

	if err = s.deps.Authz.Authorize(actor, security.PermManageOrders); err != nil {
		return err
	}
	err = s.orders.Delete(ctx, id)
	s.deps.Audit.LogResult(ctx, actor, "delete", "order", id, err)
	if err != nil {
		err = fmt.Errorf("delete order %s: %w", id, err)
		return err
	}
	s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionDeleted, id)
	s.deps.Logger.Info("order deleted", slog.String("order_id", id), slog.String("deleted_by", actor.UserID))
	return nil
}

// SetOrderStatus overrides the stored order status
func (s *OrderService) SetOrderStatus(ctx context.Context, actor domain.Actor, id string, status domain.OrderStatus) (*domain.Order, error) {
	ctx, span := tracing.Start(ctx, "OrderService.SetOrderStatus", attribute.String("order_id", id))
	var err error
	defer func() {
		metrics.ObserveOrderOperation("set_status", err)
		tracing.End(span, err)
	}()

	if err = s.deps.Authz.Authorize(actor, security.PermManageOrders); err != nil {
		return nil, err
	}
	if !status.Valid() {
		err = fmt.Errorf("%w: unknown status %q", domain.ErrBadArguments, status)
		return nil, err
	}
	err = s.orders.UpdateStatus(ctx, id, status)
	s.deps.Audit.LogResult(ctx, actor, "set_status", "order", id, err)
	if err != nil {
		err = fmt.Errorf("update order %s: %w", id, err)
		return nil, err
	}
	s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionUpdated, id)
	var order *domain.Order
	order, err = s.orders.GetByID(ctx, id)
	return order, err
}

// AcceptOrder claims an unfinished order for the actor. Accepting twice
// returns the existing record with created=false.
func (s *OrderService) AcceptOrder(ctx context.Context, actor domain.Actor, orderID string) (*domain.Progress, bool, error) {
	ctx, span := tracing.Start(ctx, "OrderService.AcceptOrder", attribute.String("order_id", orderID))
	var err error
	defer func() {
		metrics.ObserveOrderOperation("accept", err)
		tracing.End(span, err)
	}()

	if err = s.deps.Authz.Authorize(actor, security.PermWorkOrders); err != nil {
		return nil, false, err
	}
	var order *domain.Order
	if order, err = s.orders.GetByID(ctx, orderID); err != nil {
		return nil, false, err
	}
	if existing := order.ProgressFor(actor.UserID); existing != nil {
		return existing, false, nil
	}
	if order.Status == domain.OrderCompleted {
		err = fmt.Errorf("%w: order is completed", domain.ErrInvalidTransition)
		return nil, false, err
	}

	progress := &domain.Progress{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		UserID:    actor.UserID,
		Status:    domain.ProgressAccepted,
		CreatedAt: s.deps.Now().UTC(),
	}
	var created bool
	progress, created, err = s.orders.AddProgress(ctx, progress)
	if err != nil {
		err = fmt.Errorf("accept order %s: %w", orderID, err)
		return nil, false, err
	}
	if !created {
		return progress, false, nil
	}

	if order.Status == domain.OrderOpen {
		if err = s.orders.UpdateStatus(ctx, orderID, domain.OrderInProgress); err != nil {
			err = fmt.Errorf("mark order %s in progress: %w", orderID, err)
			return nil, false, err
		}
	}
	metrics.ObserveProgressTransition(string(domain.ProgressAccepted))
	s.deps.Audit.LogResult(ctx, actor, "accept", "order", orderID, nil)
	s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionUpdated, orderID)
	s.deps.Logger.Info("order accepted", slog.String("order_id", orderID), slog.String("user_id", actor.UserID))
	return progress, true, nil
}

// UpdateProgress sets the cumulative amount the actor completed for one
// block of the order and recomputes the progress status
func (s *OrderService) UpdateProgress(ctx context.Context, actor domain.Actor, orderID, blockID string, amount int) (*domain.Progress, error) {
	ctx, span := tracing.Start(ctx, "OrderService.UpdateProgress",
		attribute.String("order_id", orderID),
		attribute.String("block_id", blockID),
	)
	var err error
	defer func() {
		metrics.ObserveOrderOperation("progress", err)
		tracing.End(span, err)
	}()

	if err = s.deps.Authz.Authorize(actor, security.PermWorkOrders); err != nil {
		return nil, err
	}
	var order *domain.Order
	var progress *domain.Progress
	if order, progress, err = s.ownProgress(ctx, actor, orderID); err != nil {
		return nil, err
	}
	item, ok := order.Item(blockID)
	if !ok {
		err = fmt.Errorf("%w: block %q is not part of the order", domain.ErrBadArguments, blockID)
		return nil, err
	}
	if amount < 0 || amount > item.Amount {
		err = fmt.Errorf("%w: amount must be between 0 and %d", domain.ErrBadArguments, item.Amount)
		return nil, err
	}
	if !progress.Status.Editable() {
		err = fmt.Errorf("%w: progress is %s", domain.ErrInvalidTransition, progress.Status)
		return nil, err
	}

	before := progress.Status
	progress.SetCompleted(blockID, amount)
	progress.Status = domain.DeriveStatus(progress.Status, progress.TotalCompleted())
	if err = s.orders.SaveProgress(ctx, progress); err != nil {
		err = fmt.Errorf("save progress: %w", err)
		return nil, err
	}
	if progress.Status != before {
		metrics.ObserveProgressTransition(string(progress.Status))
	}
	s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionUpdated, orderID)
	s.deps.Logger.Debug("progress updated",
		slog.String("order_id", orderID),
		slog.String("user_id", actor.UserID),
		slog.String("block_id", blockID),
		slog.Int("amount", amount),
		slog.String("status", string(progress.Status)),
	)
	return progress, nil
}

// SubmitOrder marks the actor's work as done. Completed amounts must cover
// the ordered total unless partial submission is enabled.
func (s *OrderService) SubmitOrder(ctx context.Context, actor domain.Actor, orderID string) (*domain.Progress, error) {
	ctx, span := tracing.Start(ctx, "OrderService.SubmitOrder", attribute.String("order_id", orderID))
	var err error
	defer func() {
		metrics.ObserveOrderOperation("submit", err)
		tracing.End(span, err)
	}()

	if err = s.deps.Authz.Authorize(actor, security.PermWorkOrders); err != nil {
		return nil, err
	}
	var order *domain.Order
	var progress *domain.Progress
	if order, progress, err = s.ownProgress(ctx, actor, orderID); err != nil {
		return nil, err
	}
	if !progress.Status.Editable() {
		err = fmt.Errorf("%w: progress is already %s", domain.ErrInvalidTransition, progress.Status)
		return nil, err
	}
	ordered, completed := order.TotalOrdered(), progress.TotalCompleted()
	if !domain.CanSubmit(ordered, completed) && !s.deps.Flags(featureflags.AllowPartialSubmit) {
		err = fmt.Errorf("%w: completed %d of %d", domain.ErrInvalidTransition, completed, ordered)
		return nil, err
	}

	now := s.deps.Now().UTC()
	progress.Status = domain.ProgressSubmitted
	progress.SubmittedAt = &now
	if err = s.orders.SaveProgress(ctx, progress); err != nil {
		err = fmt.Errorf("save progress: %w", err)
		return nil, err
	}
	metrics.ObserveProgressTransition(string(domain.ProgressSubmitted))
	s.deps.Audit.LogResult(ctx, actor, "submit", "order", orderID, nil)
	s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionUpdated, orderID)
	s.deps.Logger.Info("order submitted",
		slog.String("order_id", orderID),
		slog.String("user_id", actor.UserID),
		slog.Int("completed", completed),
		slog.Int("ordered", ordered),
	)
	return progress, nil
}

// ConfirmOrder accepts a member's submitted work
func (s *OrderService) ConfirmOrder(ctx context.Context, actor domain.Actor, orderID, userID string) (*domain.Progress, error) {
	ctx, span := tracing.Start(ctx, "OrderService.ConfirmOrder",
		attribute.String("order_id", orderID),
		attribute.String("user_id", userID),
	)
	var err error
	defer func() {
		metrics.ObserveOrderOperation("confirm", err)
		tracing.End(span, err)
	}()

	if err = s.deps.Authz.Authorize(actor, security.PermConfirmProgress); err != nil {
		return nil, err
	}
	var order *domain.Order
	if order, err = s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	progress := order.ProgressFor(userID)
	if progress == nil {
		err = fmt.Errorf("%w: user has no progress on this order", domain.ErrNotFound)
		return nil, err
	}
	if progress.Status != domain.ProgressSubmitted {
		err = fmt.Errorf("%w: progress is %s, not submitted", domain.ErrInvalidTransition, progress.Status)
		return nil, err
	}

	now := s.deps.Now().UTC()
	progress.Status = domain.ProgressConfirmed
	progress.ConfirmedAt = &now
	progress.ConfirmedBy = actor.UserID
	err = s.orders.SaveProgress(ctx, progress)
	s.deps.Audit.LogResult(ctx, actor, "confirm", "progress", progress.ID, err)
	if err != nil {
		err = fmt.Errorf("save progress: %w", err)
		return nil, err
	}
	metrics.ObserveProgressTransition(string(domain.ProgressConfirmed))
	s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionUpdated, orderID)
	s.deps.Logger.Info("order confirmed",
		slog.String("order_id", orderID),
		slog.String("user_id", userID),
		slog.String("confirmed_by", actor.UserID),
	)
	return progress, nil
}

// ownProgress loads the order and the actor's progress on it
func (s *OrderService) ownProgress(ctx context.Context, actor domain.Actor, orderID string) (*domain.Order, *domain.Progress, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	progress := order.ProgressFor(actor.UserID)
	if progress == nil {
		return nil, nil, fmt.Errorf("%w: you have not accepted this order", domain.ErrNotFound)
	}
	return order, progress, nil
}

// SweepResult summarizes one sweeper pass
type SweepResult struct {
	Overdue   int
	Completed []string
}

// Sweep counts overdue orders and completes orders whose progress records
// are all confirmed
func (s *OrderService) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := tracing.Start(ctx, "OrderService.Sweep")
	var err error
	defer func() { tracing.End(span, err) }()

	var orders []*domain.Order
	if orders, err = s.orders.List(ctx); err != nil {
		return SweepResult{}, fmt.Errorf("list orders: %w", err)
	}

	now := s.deps.Now()
	var result SweepResult
	var errs []error
	for _, o := range orders {
		if o.Status != domain.OrderCompleted && o.AllConfirmed() {
			if uerr := s.orders.UpdateStatus(ctx, o.ID, domain.OrderCompleted); uerr != nil {
				errs = append(errs, fmt.Errorf("complete order %s: %w", o.ID, uerr))
				continue
			}
			o.Status = domain.OrderCompleted
			result.Completed = append(result.Completed, o.ID)
			s.deps.Events.Publish(ctx, events.TopicOrders, events.ActionUpdated, o.ID)
			s.deps.Logger.Info("order completed", slog.String("order_id", o.ID))
		}
		if o.IsOverdue(now) {
			result.Overdue++
		}
	}
	err = errors.Join(errs...)
	return result, err
}
