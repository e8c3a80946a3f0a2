package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/featureflags"
	"github.com/aryan0dhankhar/farmorders/internal/repository"
)

type recordedChange struct {
	topic  events.Topic
	action events.Action
	id     string
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (p *recordingPublisher) Publish(_ context.Context, topic events.Topic, action events.Action, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, recordedChange{topic, action, id})
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}

type orderFixture struct {
	svc    *OrderService
	users  domain.UserRepository
	orders domain.OrderRepository
	events *recordingPublisher
	admin  domain.Actor
	farmer domain.Actor
	viewer domain.Actor
	now    time.Time
}

func date(s string) time.Time {
	t, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func newOrderFixture(t *testing.T, flags map[string]bool) *orderFixture {
	t.Helper()
	store := repository.NewBlobStore(repository.NewMemoryKV(), "test", nil)
	f := &orderFixture{
		users:  store.Users(),
		orders: store.Orders(),
		events: &recordingPublisher{},
		admin:  domain.Actor{UserID: "admin-1", Username: "admin", Role: domain.RoleAdmin},
		farmer: domain.Actor{UserID: "farmer-1", Username: "steve", Role: domain.RoleFarmer},
		viewer: domain.Actor{UserID: "viewer-1", Username: "alex", Role: domain.RoleViewer},
		now:    time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	ctx := context.Background()
	for i, a := range []domain.Actor{f.admin, f.farmer, f.viewer} {
		u := &domain.User{ID: a.UserID, Username: a.Username, Role: a.Role, CreatedAt: f.now.Add(time.Duration(i) * time.Minute)}
		if err := f.users.Create(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	f.svc = NewOrderService(f.orders, f.users, Deps{
		Events: f.events,
		Flags:  featureflags.Static(flags),
		Now:    func() time.Time { return f.now },
	})
	return f
}

func (f *orderFixture) addFarmer(t *testing.T, id, name string) domain.Actor {
	t.Helper()
	u := &domain.User{ID: id, Username: name, Role: domain.RoleFarmer, CreatedAt: f.now}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return domain.Actor{UserID: id, Username: name, Role: domain.RoleFarmer}
}

func wheatOrder(amount int) NewOrder {
	return NewOrder{
		Items:     []domain.OrderItem{{BlockID: "wheat", Amount: amount, Unit: domain.UnitDK}},
		StartDate: date("2024-01-01"),
		Deadline:  date("2024-01-31"),
	}
}

func TestOrderLifecycleScenario(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	order, err := f.svc.CreateOrder(ctx, f.admin, wheatOrder(10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != domain.OrderOpen || len(order.Progress) != 0 {
		t.Fatalf("unexpected new order %+v", order)
	}

	p, created, err := f.svc.AcceptOrder(ctx, f.farmer, order.ID)
	if err != nil || !created || p.Status != domain.ProgressAccepted {
		t.Fatalf("accept: created=%v err=%v p=%+v", created, err, p)
	}
	if got, _ := f.orders.GetByID(ctx, order.ID); got.Status != domain.OrderInProgress {
		t.Fatalf("first accept should start the order, got %s", got.Status)
	}

	for i := 0; i < 2; i++ {
		p, err = f.svc.UpdateProgress(ctx, f.farmer, order.ID, "wheat", 10)
		if err != nil {
			t.Fatalf("progress: %v", err)
		}
	}
	if p.Status != domain.ProgressInProgress {
		t.Fatalf("expected in_progress after completing, got %s", p.Status)
	}
	stored, _ := f.orders.GetByID(ctx, order.ID)
	sp := stored.ProgressFor(f.farmer.UserID)
	if len(sp.Completed) != 1 || sp.CompletedAmount("wheat") != 10 {
		t.Fatalf("expected one completed entry of 10, got %+v", sp.Completed)
	}

	p, err = f.svc.SubmitOrder(ctx, f.farmer, order.ID)
	if err != nil || p.Status != domain.ProgressSubmitted || p.SubmittedAt == nil {
		t.Fatalf("submit: err=%v p=%+v", err, p)
	}

	p, err = f.svc.ConfirmOrder(ctx, f.admin, order.ID, f.farmer.UserID)
	if err != nil || p.Status != domain.ProgressConfirmed || p.ConfirmedBy != f.admin.UserID || p.ConfirmedAt == nil {
		t.Fatalf("confirm: err=%v p=%+v", err, p)
	}

	// Replaying the sequence must not duplicate records
	if _, created, err := f.svc.AcceptOrder(ctx, f.farmer, order.ID); err != nil || created {
		t.Fatalf("replayed accept: created=%v err=%v", created, err)
	}
	if _, err := f.svc.UpdateProgress(ctx, f.farmer, order.ID, "wheat", 10); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("confirmed progress must be locked, got %v", err)
	}
	if _, err := f.svc.SubmitOrder(ctx, f.farmer, order.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("replayed submit: %v", err)
	}
	if _, err := f.svc.ConfirmOrder(ctx, f.admin, order.ID, f.farmer.UserID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("replayed confirm: %v", err)
	}
	final, _ := f.orders.GetByID(ctx, order.ID)
	if len(final.Progress) != 1 {
		t.Fatalf("expected a single progress record, got %d", len(final.Progress))
	}
	if f.events.count() == 0 {
		t.Fatalf("expected change events")
	}
}

func TestAutoAssignCreatesOneRecordPerFarmer(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()
	second := f.addFarmer(t, "farmer-2", "herobrine")

	in := wheatOrder(64)
	in.AutoAssign = true
	order, err := f.svc.CreateOrder(ctx, f.admin, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.Status != domain.OrderInProgress {
		t.Fatalf("expected in_progress, got %s", order.Status)
	}

	stored, _ := f.orders.GetByID(ctx, order.ID)
	if len(stored.Progress) != 2 {
		t.Fatalf("expected 2 records, got %d", len(stored.Progress))
	}
	for _, a := range []domain.Actor{f.farmer, second} {
		p := stored.ProgressFor(a.UserID)
		if p == nil || p.Status != domain.ProgressAccepted {
			t.Fatalf("expected accepted record for %s, got %+v", a.Username, p)
		}
	}
	if stored.ProgressFor(f.viewer.UserID) != nil || stored.ProgressFor(f.admin.UserID) != nil {
		t.Fatalf("only farmers are auto-assigned")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		in   NewOrder
	}{
		{"no items", NewOrder{StartDate: date("2024-01-01"), Deadline: date("2024-01-31")}},
		{"empty block", NewOrder{Items: []domain.OrderItem{{BlockID: " ", Amount: 1, Unit: domain.UnitDK}}, StartDate: date("2024-01-01"), Deadline: date("2024-01-31")}},
		{"unknown block", NewOrder{Items: []domain.OrderItem{{BlockID: "unobtainium", Amount: 1, Unit: domain.UnitDK}}, StartDate: date("2024-01-01"), Deadline: date("2024-01-31")}},
		{"zero amount", NewOrder{Items: []domain.OrderItem{{BlockID: "wheat", Amount: 0, Unit: domain.UnitDK}}, StartDate: date("2024-01-01"), Deadline: date("2024-01-31")}},
		{"bad unit", NewOrder{Items: []domain.OrderItem{{BlockID: "wheat", Amount: 1, Unit: "stacks"}}, StartDate: date("2024-01-01"), Deadline: date("2024-01-31")}},
		{"missing deadline", NewOrder{Items: []domain.OrderItem{{BlockID: "wheat", Amount: 1, Unit: domain.UnitDK}}, StartDate: date("2024-01-01")}},
		{"deadline before start", NewOrder{Items: []domain.OrderItem{{BlockID: "wheat", Amount: 1, Unit: domain.UnitDK}}, StartDate: date("2024-02-01"), Deadline: date("2024-01-01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateOrder(ctx, f.admin, tt.in); !errors.Is(err, domain.ErrBadArguments) {
				t.Fatalf("expected ErrBadArguments, got %v", err)
			}
		})
	}
}

func TestOrderAuthorization(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	if _, err := f.svc.CreateOrder(ctx, f.farmer, wheatOrder(1)); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("farmer create: %v", err)
	}
	order, _ := f.svc.CreateOrder(ctx, f.admin, wheatOrder(1))
	if _, _, err := f.svc.AcceptOrder(ctx, f.viewer, order.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("viewer accept: %v", err)
	}
	if _, err := f.svc.ConfirmOrder(ctx, f.farmer, order.ID, f.farmer.UserID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("farmer confirm: %v", err)
	}
	if err := f.svc.DeleteOrder(ctx, f.farmer, order.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("farmer delete: %v", err)
	}
	if _, err := f.svc.ListOrders(ctx, f.viewer, OrderFilter{}); err != nil {
		t.Fatalf("viewer list: %v", err)
	}
}

func TestUpdateProgressRules(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := f.svc.CreateOrder(ctx, f.admin, NewOrder{
		Items: []domain.OrderItem{
			{BlockID: "wheat", Amount: 10, Unit: domain.UnitDK},
			{BlockID: "carrots", Amount: 5, Unit: domain.UnitKisten},
		},
		StartDate: date("2024-01-01"),
		Deadline:  date("2024-01-31"),
	})

	if _, err := f.svc.UpdateProgress(ctx, f.farmer, order.ID, "wheat", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("progress before accept: %v", err)
	}
	if _, _, err := f.svc.AcceptOrder(ctx, f.farmer, order.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.UpdateProgress(ctx, f.farmer, order.ID, "diamond", 1); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("foreign block: %v", err)
	}
	if _, err := f.svc.UpdateProgress(ctx, f.farmer, order.ID, "wheat", 11); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("over amount: %v", err)
	}
	if _, err := f.svc.UpdateProgress(ctx, f.farmer, order.ID, "wheat", -1); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("negative amount: %v", err)
	}

	p, err := f.svc.UpdateProgress(ctx, f.farmer, order.ID, "wheat", 4)
	if err != nil || p.Status != domain.ProgressInProgress {
		t.Fatalf("partial: err=%v status=%v", err, p)
	}
	if pct := domain.Percent(order.TotalOrdered(), p.TotalCompleted()); pct != 27 {
		t.Fatalf("expected 27%%, got %d", pct)
	}

	// Going back to zero reverts to accepted
	p, err = f.svc.UpdateProgress(ctx, f.farmer, order.ID, "wheat", 0)
	if err != nil || p.Status != domain.ProgressAccepted {
		t.Fatalf("revert: err=%v status=%v", err, p)
	}
}

func TestSubmitGate(t *testing.T) {
	ctx := context.Background()

	strict := newOrderFixture(t, nil)
	order, _ := strict.svc.CreateOrder(ctx, strict.admin, wheatOrder(10))
	strict.svc.AcceptOrder(ctx, strict.farmer, order.ID)
	strict.svc.UpdateProgress(ctx, strict.farmer, order.ID, "wheat", 9)
	if _, err := strict.svc.SubmitOrder(ctx, strict.farmer, order.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected partial submit to be rejected, got %v", err)
	}
	if _, err := strict.svc.ConfirmOrder(ctx, strict.admin, order.ID, strict.farmer.UserID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("confirm before submit: %v", err)
	}

	permissive := newOrderFixture(t, map[string]bool{featureflags.AllowPartialSubmit: true})
	order, _ = permissive.svc.CreateOrder(ctx, permissive.admin, wheatOrder(10))
	permissive.svc.AcceptOrder(ctx, permissive.farmer, order.ID)
	p, err := permissive.svc.SubmitOrder(ctx, permissive.farmer, order.ID)
	if err != nil || p.Status != domain.ProgressSubmitted {
		t.Fatalf("expected unconditional submit with flag, err=%v", err)
	}
}

func TestAcceptCompletedOrder(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := f.svc.CreateOrder(ctx, f.admin, wheatOrder(10))
	if _, err := f.svc.SetOrderStatus(ctx, f.admin, order.ID, domain.OrderCompleted); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, _, err := f.svc.AcceptOrder(ctx, f.farmer, order.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected completed order to be closed, got %v", err)
	}
	if _, err := f.svc.SetOrderStatus(ctx, f.admin, order.ID, "paused"); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("expected unknown status to be rejected, got %v", err)
	}
}

func TestListOrdersFilters(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	small, _ := f.svc.CreateOrder(ctx, f.admin, wheatOrder(10))
	f.now = f.now.Add(time.Minute)
	big, _ := f.svc.CreateOrder(ctx, f.admin, NewOrder{
		Items:     []domain.OrderItem{{BlockID: "diamond", Amount: 500, Unit: domain.UnitKisten}},
		StartDate: date("2024-01-01"),
		Deadline:  date("2024-01-10"),
	})
	f.svc.AcceptOrder(ctx, f.farmer, small.ID)

	ids := func(orders []*domain.Order) []string {
		out := []string{}
		for _, o := range orders {
			out = append(out, o.ID)
		}
		return out
	}

	tests := []struct {
		name   string
		filter OrderFilter
		want   []string
	}{
		{"all newest first", OrderFilter{}, []string{big.ID, small.ID}},
		{"mine", OrderFilter{Mine: true}, []string{small.ID}},
		{"available", OrderFilter{Available: true}, []string{big.ID}},
		{"overdue", OrderFilter{Status: domain.DisplayOverdue}, []string{big.ID}},
		{"in progress", OrderFilter{Status: string(domain.OrderInProgress)}, []string{small.ID}},
		{"expression", OrderFilter{Expr: `totalOrdered > 100 && "diamond" in blocks`}, []string{big.ID}},
		{"expression on assignees", OrderFilter{Expr: `assignees == 1`}, []string{small.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListOrders(ctx, f.farmer, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			g := ids(got)
			if len(g) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, g)
			}
			for i := range g {
				if g[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, g)
				}
			}
		})
	}

	if _, err := f.svc.ListOrders(ctx, f.farmer, OrderFilter{Expr: `totalOrdered +`}); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("expected bad expression error, got %v", err)
	}
	if _, err := f.svc.ListOrders(ctx, f.farmer, OrderFilter{Expr: `totalOrdered`}); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("expected non-boolean expression error, got %v", err)
	}
	if _, err := f.svc.ListOrders(ctx, f.farmer, OrderFilter{Status: "paused"}); !errors.Is(err, domain.ErrBadArguments) {
		t.Fatalf("expected bad status error, got %v", err)
	}
}

func TestSweepCompletesConfirmedOrders(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()

	done, _ := f.svc.CreateOrder(ctx, f.admin, wheatOrder(10))
	f.svc.AcceptOrder(ctx, f.farmer, done.ID)
	f.svc.UpdateProgress(ctx, f.farmer, done.ID, "wheat", 10)
	f.svc.SubmitOrder(ctx, f.farmer, done.ID)
	f.svc.ConfirmOrder(ctx, f.admin, done.ID, f.farmer.UserID)

	late, _ := f.svc.CreateOrder(ctx, f.admin, NewOrder{
		Items:     []domain.OrderItem{{BlockID: "oak_log", Amount: 3, Unit: domain.UnitDK}},
		StartDate: date("2024-01-01"),
		Deadline:  date("2024-01-05"),
	})
	f.svc.CreateOrder(ctx, f.admin, wheatOrder(5)) // open, nobody working

	res, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(res.Completed) != 1 || res.Completed[0] != done.ID {
		t.Fatalf("expected only %s completed, got %v", done.ID, res.Completed)
	}
	if res.Overdue != 1 {
		t.Fatalf("expected 1 overdue (%s), got %d", late.ID, res.Overdue)
	}
	stored, _ := f.orders.GetByID(ctx, done.ID)
	if stored.Status != domain.OrderCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}

	res, _ = f.svc.Sweep(ctx)
	if len(res.Completed) != 0 {
		t.Fatalf("second sweep should be a no-op, got %v", res.Completed)
	}
}

func TestDeletedUserDoesNotBreakReads(t *testing.T) {
	f := newOrderFixture(t, nil)
	ctx := context.Background()
	order, _ := f.svc.CreateOrder(ctx, f.admin, wheatOrder(10))
	f.svc.AcceptOrder(ctx, f.farmer, order.ID)

	if err := f.users.Delete(ctx, f.farmer.UserID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := f.svc.GetOrder(ctx, f.admin, order.ID)
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	dir := NewDirectory(f.users, nil)
	if label := dir.Label(ctx, got.Progress[0].UserID); label != domain.UnknownUserLabel {
		t.Fatalf("expected fallback label, got %q", label)
	}
	if label := dir.Label(ctx, f.admin.UserID); label != "admin" {
		t.Fatalf("expected admin label, got %q", label)
	}
}
