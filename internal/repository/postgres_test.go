package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/pkg/database"
)

// openTestDB connects to TEST_DATABASE_URL, migrates and empties every table
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.NewConnectionPool(ctx, &database.Config{URL: url}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	const truncate = `TRUNCATE profiles, credentials, farm_orders, order_items,
		user_order_progress, completed_items, absence_requests CASCADE`
	if _, err := pool.DB().ExecContext(ctx, truncate); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool.DB()
}

func testOrder(createdBy string) *domain.Order {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Order{
		ID: uuid.NewString(),
		Items: []domain.OrderItem{
			{BlockID: "wheat", Amount: 10, Unit: domain.UnitDK},
			{BlockID: "carrot", Amount: 4, Unit: domain.UnitKisten},
		},
		StartDate: day,
		Deadline:  day.AddDate(0, 0, 14),
		Status:    domain.OrderOpen,
		CreatedBy: createdBy,
		CreatedAt: day,
	}
}

func TestIsInvalidText(t *testing.T) {
	if !isInvalidText(&pq.Error{Code: "22P02"}) || !isMissing(&pq.Error{Code: "22P02"}) {
		t.Fatal("malformed input should count as missing")
	}
	if isInvalidText(&pq.Error{Code: "23505"}) || isInvalidText(errors.New("boom")) {
		t.Fatal("other errors are not malformed input")
	}
}

func TestPostgresMalformedIDsAreNotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	orders := NewPostgresOrderRepository(db, nil)
	users := NewPostgresUserRepository(db, nil)
	absences := NewPostgresAbsenceRepository(db, nil)

	if _, err := orders.GetByID(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("order GetByID: expected not found, got %v", err)
	}
	if err := orders.Delete(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("order Delete: expected not found, got %v", err)
	}
	if err := orders.UpdateStatus(ctx, "abc", domain.OrderCompleted); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("order UpdateStatus: expected not found, got %v", err)
	}
	if _, err := users.GetByID(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("user GetByID: expected not found, got %v", err)
	}
	if err := users.Delete(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("user Delete: expected not found, got %v", err)
	}
	if _, err := absences.GetByID(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("absence GetByID: expected not found, got %v", err)
	}
	if list, err := absences.ListByUser(ctx, "abc"); err != nil || len(list) != 0 {
		t.Fatalf("absence ListByUser: expected empty list, got %v, %v", list, err)
	}
}

func TestPostgresUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(db, nil)

	steve := &domain.User{
		ID: uuid.NewString(), Username: "Steve", Email: "steve@darknova.app",
		PasswordHash: "hash", Role: domain.RoleFarmer, CreatedAt: time.Now().UTC(),
	}
	if err := users.Create(ctx, steve); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := &domain.User{
		ID: uuid.NewString(), Username: "STEVE", Email: "steve2@darknova.app",
		PasswordHash: "hash", Role: domain.RoleViewer, CreatedAt: time.Now().UTC(),
	}
	if err := users.Create(ctx, dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected case-insensitive duplicate, got %v", err)
	}
	got, err := users.GetByUsername(ctx, "steve")
	if err != nil || got.ID != steve.ID || got.PasswordHash != "hash" {
		t.Fatalf("lookup by username: %+v, %v", got, err)
	}
	if err := users.Delete(ctx, steve.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := users.Count(ctx); n != 0 {
		t.Fatalf("expected no users, got %d", n)
	}
}

func TestPostgresOrdersCreateListAndCascade(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	orders := NewPostgresOrderRepository(db, nil)

	farmer := uuid.NewString()
	order := testOrder(uuid.NewString())
	order.AutoAssign = true
	order.Progress = []*domain.Progress{{
		ID: uuid.NewString(), OrderID: order.ID, UserID: farmer,
		Status: domain.ProgressAccepted, CreatedAt: order.CreatedAt,
		Completed: []domain.CompletedItem{{BlockID: "wheat", Amount: 3}},
	}}
	if err := orders.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	older := testOrder("")
	older.CreatedAt = order.CreatedAt.Add(-time.Hour)
	if err := orders.Create(ctx, older); err != nil {
		t.Fatalf("create older: %v", err)
	}

	list, err := orders.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != order.ID {
		t.Fatalf("expected newest order first, got %d orders", len(list))
	}
	got := list[0]
	if len(got.Items) != 2 || got.Items[0].BlockID != "wheat" || got.Items[1].Unit != domain.UnitKisten {
		t.Fatalf("items not kept in order: %+v", got.Items)
	}
	if p := got.ProgressFor(farmer); p == nil || p.CompletedAmount("wheat") != 3 {
		t.Fatalf("initial progress not stored: %+v", got.Progress)
	}

	if err := orders.Delete(ctx, order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var left int
	const q = `SELECT
		(SELECT count(*) FROM order_items WHERE order_id = $1) +
		(SELECT count(*) FROM user_order_progress WHERE order_id = $1) +
		(SELECT count(*) FROM completed_items WHERE progress_id = $2)`
	if err := db.GetContext(ctx, &left, q, order.ID, order.Progress[0].ID); err != nil {
		t.Fatalf("count: %v", err)
	}
	if left != 0 {
		t.Fatalf("expected delete to cascade, %d rows left", left)
	}
	if err := orders.Delete(ctx, order.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: expected not found, got %v", err)
	}
}

func TestPostgresProgressAcceptAndUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	orders := NewPostgresOrderRepository(db, nil)

	order := testOrder("")
	if err := orders.Create(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	farmer := uuid.NewString()
	first := &domain.Progress{ID: uuid.NewString(), OrderID: order.ID, UserID: farmer, Status: domain.ProgressAccepted, CreatedAt: time.Now().UTC()}
	p, created, err := orders.AddProgress(ctx, first)
	if err != nil || !created || p.ID != first.ID {
		t.Fatalf("first accept: %+v, %v, %v", p, created, err)
	}
	again := &domain.Progress{ID: uuid.NewString(), OrderID: order.ID, UserID: farmer, Status: domain.ProgressAccepted, CreatedAt: time.Now().UTC()}
	p, created, err = orders.AddProgress(ctx, again)
	if err != nil || created || p.ID != first.ID {
		t.Fatalf("accept should be idempotent, got %+v, %v, %v", p, created, err)
	}
	if _, _, err := orders.AddProgress(ctx, &domain.Progress{ID: uuid.NewString(), OrderID: uuid.NewString(), UserID: farmer, Status: domain.ProgressAccepted}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("accept on a missing order: expected not found, got %v", err)
	}

	p.Status = domain.ProgressInProgress
	p.SetCompleted("wheat", 4)
	if err := orders.SaveProgress(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	p.SetCompleted("wheat", 7)
	p.SetCompleted("carrot", 2)
	if err := orders.SaveProgress(ctx, p); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := orders.GetByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stored := got.ProgressFor(farmer)
	if stored.Status != domain.ProgressInProgress || len(stored.Completed) != 2 {
		t.Fatalf("unexpected progress %+v", stored)
	}
	if stored.CompletedAmount("wheat") != 7 || stored.CompletedAmount("carrot") != 2 {
		t.Fatalf("completed entries should be upserted per block, got %+v", stored.Completed)
	}
}
