package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/featureflags"
	"github.com/aryan0dhankhar/farmorders/internal/repository"
	"github.com/aryan0dhankhar/farmorders/internal/security/auth"
	"github.com/aryan0dhankhar/farmorders/internal/service"
)

type testAPI struct {
	handler http.Handler
	hub     *events.Hub
}

func newTestAPI(t *testing.T, checks map[string]Pinger) *testAPI {
	t.Helper()
	store := repository.NewBlobStore(repository.NewMemoryKV(), "test", nil)
	hub := events.NewHub(8, nil)
	deps := service.Deps{Events: hub, Flags: featureflags.Static(nil)}

	users := service.NewUserService(store.Users(), nil, "darknova.app", deps)
	tokens := auth.NewTokenManager("test-secret", "farmorders")
	authSvc := service.NewAuthService(store.Users(), users, tokens, time.Hour, deps)
	orders := service.NewOrderService(store.Orders(), store.Users(), deps)
	absences := service.NewAbsenceService(store.Absences(), deps)
	dashboard := service.NewDashboardService(store.Orders(), store.Users(), store.Absences(), deps)

	if _, err := authSvc.SeedAdmin(context.Background(), "admin", "Password123"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := Handlers{
		Auth:      NewAuthHandler(authSvc, nil),
		Users:     NewUserHandler(users, nil),
		Orders:    NewOrderHandler(orders, users.Directory(), nil),
		Absences:  NewAbsenceHandler(absences, users.Directory(), nil),
		Catalog:   NewCatalogHandler(nil),
		Dashboard: NewDashboardHandler(dashboard, users.Directory(), nil),
		Health:    NewHealthHandler(checks, nil),
		Changes:   NewChangesHandler(hub, nil, []string{"http://localhost:5173"}),
	}
	mux := http.NewServeMux()
	h.Register(mux, nil)
	return &testAPI{
		handler: Wrap(mux, StackConfig{Tokens: tokens, Revoked: authSvc}),
		hub:     hub,
	}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T, username, password string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, w.Code, w.Body.String())
	}
	var resp struct {
		Token string   `json:"token"`
		User  UserView `json:"user"`
	}
	decode(t, w, &resp)
	if resp.Token == "" || resp.User.Username != username {
		t.Fatalf("unexpected login response %s", w.Body.String())
	}
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t, nil)
	admin := api.login(t, "admin", "Password123")

	w := api.do(t, http.MethodPost, "/api/users", admin, map[string]string{"username": "steve", "password": "Password123", "role": "farmer"})
	expectStatus(t, w, http.StatusCreated)
	var steve UserView
	decode(t, w, &steve)
	farmer := api.login(t, "steve", "Password123")

	order := map[string]any{
		"items":     []map[string]any{{"blockId": "wheat", "amount": 10, "unit": "dk"}},
		"startDate": "2024-01-01",
		"deadline":  "2099-01-31",
	}
	expectStatus(t, api.do(t, http.MethodPost, "/api/orders", farmer, order), http.StatusForbidden)
	w = api.do(t, http.MethodPost, "/api/orders", admin, order)
	expectStatus(t, w, http.StatusCreated)
	var created OrderView
	decode(t, w, &created)
	if created.Status != "open" || created.TotalOrdered != 10 || created.Items[0].BlockName != "Wheat" || created.CreatedByName != "admin" {
		t.Fatalf("unexpected order %+v", created)
	}
	base := "/api/orders/" + created.ID

	expectStatus(t, api.do(t, http.MethodPost, base+"/accept", farmer, nil), http.StatusCreated)
	expectStatus(t, api.do(t, http.MethodPost, base+"/accept", farmer, nil), http.StatusOK)

	expectStatus(t, api.do(t, http.MethodPut, base+"/progress/wheat", farmer, map[string]int{"amount": 4}), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodPost, base+"/submit", farmer, nil), http.StatusUnprocessableEntity)
	expectStatus(t, api.do(t, http.MethodPut, base+"/progress/wheat", farmer, map[string]int{"amount": 11}), http.StatusBadRequest)
	expectStatus(t, api.do(t, http.MethodPut, base+"/progress/wheat", farmer, map[string]any{}), http.StatusBadRequest)

	w = api.do(t, http.MethodPut, base+"/progress/wheat", farmer, map[string]int{"amount": 10})
	expectStatus(t, w, http.StatusOK)
	var p ProgressView
	decode(t, w, &p)
	if p.Status != "in_progress" || p.Percent != 100 || p.Username != "steve" {
		t.Fatalf("unexpected progress %+v", p)
	}

	expectStatus(t, api.do(t, http.MethodPost, base+"/submit", farmer, nil), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodPost, base+"/confirm/"+steve.ID, farmer, nil), http.StatusForbidden)
	w = api.do(t, http.MethodPost, base+"/confirm/"+steve.ID, admin, nil)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &p)
	if p.Status != "confirmed" || p.ConfirmedByName != "admin" {
		t.Fatalf("unexpected confirmed progress %+v", p)
	}

	w = api.do(t, http.MethodGet, "/api/users/"+steve.ID+"/profile", farmer, nil)
	expectStatus(t, w, http.StatusOK)
	var profile ProfileView
	decode(t, w, &profile)
	if profile.Username != "steve" || len(profile.Confirmed) != 1 || len(profile.Active) != 0 || profile.Confirmed[0].ID != created.ID {
		t.Fatalf("unexpected profile %+v", profile)
	}
	expectStatus(t, api.do(t, http.MethodGet, "/api/users/"+profile.User.CreatedBy+"/profile", farmer, nil), http.StatusForbidden)

	w = api.do(t, http.MethodGet, "/api/orders?mine=true", farmer, nil)
	expectStatus(t, w, http.StatusOK)
	var mine []OrderView
	decode(t, w, &mine)
	if len(mine) != 1 || len(mine[0].Progress) != 1 {
		t.Fatalf("unexpected mine listing %+v", mine)
	}

	w = api.do(t, http.MethodGet, `/api/orders?filter=totalOrdered+%3E+100`, farmer, nil)
	expectStatus(t, w, http.StatusOK)
	var none []OrderView
	decode(t, w, &none)
	if len(none) != 0 {
		t.Fatalf("expected empty result, got %d", len(none))
	}
	expectStatus(t, api.do(t, http.MethodGet, "/api/orders?status=paused", farmer, nil), http.StatusBadRequest)

	// Deleting the farmer keeps the order readable
	expectStatus(t, api.do(t, http.MethodDelete, "/api/users/"+steve.ID, admin, nil), http.StatusNoContent)
	w = api.do(t, http.MethodGet, base, admin, nil)
	expectStatus(t, w, http.StatusOK)
	var after OrderView
	decode(t, w, &after)
	if after.Progress[0].Username != "Unknown" {
		t.Fatalf("expected fallback label, got %q", after.Progress[0].Username)
	}
	w = api.do(t, http.MethodGet, "/api/users/"+steve.ID+"/profile", admin, nil)
	expectStatus(t, w, http.StatusOK)
	profile = ProfileView{}
	decode(t, w, &profile)
	if profile.Username != "Unknown" || profile.User != nil || len(profile.Confirmed) != 1 {
		t.Fatalf("deleted member's profile should use the fallback label, got %+v", profile)
	}

	expectStatus(t, api.do(t, http.MethodDelete, base, admin, nil), http.StatusNoContent)
	expectStatus(t, api.do(t, http.MethodGet, base, admin, nil), http.StatusNotFound)
}

func TestAuthEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	expectStatus(t, api.do(t, http.MethodGet, "/api/orders", "", nil), http.StatusUnauthorized)
	w := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin", "password": "nope"})
	expectStatus(t, w, http.StatusUnauthorized)
	var e ErrorResponse
	decode(t, w, &e)
	if e.Error != "invalid username or password" {
		t.Fatalf("unexpected error message %q", e.Error)
	}
	expectStatus(t, api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "admin"}), http.StatusBadRequest)
	expectStatus(t, api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alex", "password": "Password123"}), http.StatusForbidden)

	token := api.login(t, "admin", "Password123")
	w = api.do(t, http.MethodGet, "/api/auth/me", token, nil)
	expectStatus(t, w, http.StatusOK)
	var me UserView
	decode(t, w, &me)
	if me.Role != "admin" || me.Email != "admin@darknova.app" {
		t.Fatalf("unexpected identity %+v", me)
	}

	expectStatus(t, api.do(t, http.MethodPost, "/api/users", token, map[string]string{"username": "ADMIN", "password": "Password123", "role": "viewer"}), http.StatusConflict)
	expectStatus(t, api.do(t, http.MethodPost, "/api/auth/change-password", token, map[string]string{"oldPassword": "bad", "newPassword": "Password456"}), http.StatusForbidden)

	expectStatus(t, api.do(t, http.MethodPost, "/api/auth/logout", token, nil), http.StatusNoContent)
	expectStatus(t, api.do(t, http.MethodGet, "/api/auth/me", token, nil), http.StatusUnauthorized)
}

func TestDeletedUserTokenIsRejected(t *testing.T) {
	api := newTestAPI(t, nil)
	admin := api.login(t, "admin", "Password123")

	w := api.do(t, http.MethodPost, "/api/users", admin, map[string]string{"username": "admin2", "password": "Password123", "role": "admin"})
	expectStatus(t, w, http.StatusCreated)
	var admin2 UserView
	decode(t, w, &admin2)
	stale := api.login(t, "admin2", "Password123")

	expectStatus(t, api.do(t, http.MethodDelete, "/api/users/"+admin2.ID, admin, nil), http.StatusNoContent)

	order := map[string]any{
		"items":     []map[string]any{{"blockId": "wheat", "amount": 10, "unit": "dk"}},
		"startDate": "2024-01-01",
		"deadline":  "2099-01-31",
	}
	expectStatus(t, api.do(t, http.MethodPost, "/api/orders", stale, order), http.StatusUnauthorized)
	expectStatus(t, api.do(t, http.MethodPost, "/api/users", stale, map[string]string{"username": "backdoor", "password": "Password123", "role": "admin"}), http.StatusUnauthorized)
	expectStatus(t, api.do(t, http.MethodGet, "/api/orders", stale, nil), http.StatusUnauthorized)

	// The deleting admin keeps working
	expectStatus(t, api.do(t, http.MethodPost, "/api/orders", admin, order), http.StatusCreated)
	expectStatus(t, api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "backdoor", "password": "Password123"}), http.StatusUnauthorized)
}

func TestAbsenceEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)
	admin := api.login(t, "admin", "Password123")
	expectStatus(t, api.do(t, http.MethodPost, "/api/users", admin, map[string]string{"username": "alex", "password": "Password123", "role": "viewer"}), http.StatusCreated)
	viewer := api.login(t, "alex", "Password123")

	expectStatus(t, api.do(t, http.MethodPost, "/api/absences", viewer, map[string]string{"startDate": "2024-03-10", "endDate": "2024-03-01"}), http.StatusBadRequest)
	expectStatus(t, api.do(t, http.MethodPost, "/api/absences", viewer, map[string]string{"startDate": "10.03.2024", "endDate": "2024-03-11"}), http.StatusBadRequest)
	w := api.do(t, http.MethodPost, "/api/absences", viewer, map[string]string{"startDate": "2024-03-10", "endDate": "2024-03-11", "reason": "trip"})
	expectStatus(t, w, http.StatusCreated)
	var a AbsenceView
	decode(t, w, &a)
	if a.Status != "pending" || a.Username != "alex" || a.StartDate != "2024-03-10" {
		t.Fatalf("unexpected absence %+v", a)
	}

	expectStatus(t, api.do(t, http.MethodPost, "/api/absences/"+a.ID+"/approve", viewer, nil), http.StatusForbidden)
	expectStatus(t, api.do(t, http.MethodPost, "/api/absences/"+a.ID+"/reject", admin, nil), http.StatusOK)
	expectStatus(t, api.do(t, http.MethodPost, "/api/absences/"+a.ID+"/approve", admin, nil), http.StatusUnprocessableEntity)

	w = api.do(t, http.MethodGet, "/api/absences", viewer, nil)
	expectStatus(t, w, http.StatusOK)
	var list []AbsenceView
	decode(t, w, &list)
	if len(list) != 1 || list[0].Status != "rejected" {
		t.Fatalf("unexpected absences %+v", list)
	}

	w = api.do(t, http.MethodGet, "/api/dashboard", admin, nil)
	expectStatus(t, w, http.StatusOK)
	var d service.Dashboard
	decode(t, w, &d)
	if d.PendingAbsences != 0 {
		t.Fatalf("expected no pending absences, got %d", d.PendingAbsences)
	}
}

func TestCatalogIsPublic(t *testing.T) {
	api := newTestAPI(t, nil)
	w := api.do(t, http.MethodGet, "/api/catalog", "", nil)
	expectStatus(t, w, http.StatusOK)
	var body struct {
		Categories []struct {
			ID     string `json:"id"`
			Blocks []struct {
				ID string `json:"id"`
			} `json:"blocks"`
		} `json:"categories"`
	}
	decode(t, w, &body)
	if len(body.Categories) == 0 || len(body.Categories[0].Blocks) == 0 {
		t.Fatalf("expected populated catalog, got %s", w.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	api := newTestAPI(t, map[string]Pinger{
		"store": func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	expectStatus(t, api.do(t, http.MethodGet, "/healthz", "", nil), http.StatusOK)

	w := api.do(t, http.MethodGet, "/readyz", "", nil)
	expectStatus(t, w, http.StatusServiceUnavailable)
	var resp ReadinessResponse
	decode(t, w, &resp)
	if resp.Checks["store"] != "ok" || !strings.HasPrefix(resp.Checks["redis"], "error:") {
		t.Fatalf("unexpected checks %+v", resp.Checks)
	}
}

func TestChangeFeed(t *testing.T) {
	api := newTestAPI(t, nil)
	admin := api.login(t, "admin", "Password123")
	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/changes?token=" + admin
	if _, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/changes", nil); err == nil {
		t.Fatalf("expected handshake without token to fail")
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	deadline := time.Now().Add(2 * time.Second)
	for api.hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	api.hub.Publish(context.Background(), events.TopicOrders, events.ActionCreated, "order-1")

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var c events.Change
	if err := ws.ReadJSON(&c); err != nil {
		t.Fatalf("read: %v", err)
	}
	if c.Topic != events.TopicOrders || c.Action != events.ActionCreated || c.ID != "order-1" || c.Origin != "" {
		t.Fatalf("unexpected change %+v", c)
	}
}
