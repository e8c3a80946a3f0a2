package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/internal/service"
)

// OrderHandler serves orders and the progress on them
type OrderHandler struct {
	orders    *service.OrderService
	directory *service.Directory
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *service.OrderService, directory *service.Directory, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{orders: orders, directory: directory, logger: logger, now: time.Now}
}

// OrderItemRequest is one line of CreateOrderRequest
type OrderItemRequest struct {
	BlockID string `json:"blockId"`
	Amount  int    `json:"amount"`
	Unit    string `json:"unit"`
}

// CreateOrderRequest is the body of POST /api/orders
type CreateOrderRequest struct {
	Items      []OrderItemRequest `json:"items"`
	StartDate  string             `json:"startDate"`
	Deadline   string             `json:"deadline"`
	AutoAssign bool               `json:"autoAssign"`
	Notes      string             `json:"notes"`
}

// StatusRequest is the body of PATCH /api/orders/{id}/status
type StatusRequest struct {
	Status string `json:"status"`
}

// ProgressRequest is the body of PUT /api/orders/{id}/progress/{blockId}
type ProgressRequest struct {
	Amount *int `json:"amount"`
}

func (h *OrderHandler) view(r *http.Request, o *domain.Order) OrderView {
	return newOrderView(o, h.directory.Labels(r.Context()), h.now())
}

func (h *OrderHandler) progressView(r *http.Request, o *domain.Order, p *domain.Progress) ProgressView {
	return newProgressView(p, o.TotalOrdered(), h.directory.Labels(r.Context()))
}

// List handles GET /api/orders?status=&mine=&available=&filter=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	q := r.URL.Query()
	filter := service.OrderFilter{
		Status: q.Get("status"),
		Expr:   q.Get("filter"),
	}
	filter.Mine, _ = strconv.ParseBool(q.Get("mine"))
	filter.Available, _ = strconv.ParseBool(q.Get("available"))

	orders, err := h.orders.ListOrders(r.Context(), actor, filter)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	labels := h.directory.Labels(r.Context())
	now := h.now()
	out := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, newOrderView(o, labels, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	start, err := domain.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	deadline, err := domain.ParseDate(req.Deadline)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	in := service.NewOrder{
		Items:      make([]domain.OrderItem, 0, len(req.Items)),
		StartDate:  start,
		Deadline:   deadline,
		AutoAssign: req.AutoAssign,
		Notes:      req.Notes,
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, domain.OrderItem{BlockID: item.BlockID, Amount: item.Amount, Unit: domain.Unit(item.Unit)})
	}

	order, err := h.orders.CreateOrder(r.Context(), actor, in)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(r, order))
}

// Get handles GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, order))
}

// Delete handles DELETE /api/orders/{id}
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if err := h.orders.DeleteOrder(r.Context(), actor, r.PathValue("id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus handles PATCH /api/orders/{id}/status
func (h *OrderHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	order, err := h.orders.SetOrderStatus(r.Context(), actor, r.PathValue("id"), domain.OrderStatus(req.Status))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(r, order))
}

// Accept handles POST /api/orders/{id}/accept. A repeated accept answers
// 200 with the existing record instead of 201.
func (h *OrderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	id := r.PathValue("id")
	progress, created, err := h.orders.AcceptOrder(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	order, err := h.orders.GetOrder(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.progressView(r, order, progress))
}

// Progress handles PUT /api/orders/{id}/progress/{blockId}
func (h *OrderHandler) Progress(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	var req ProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if req.Amount == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "amount is required"})
		return
	}
	id := r.PathValue("id")
	progress, err := h.orders.UpdateProgress(r.Context(), actor, id, r.PathValue("blockId"), *req.Amount)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.respondProgress(w, r, actor, id, progress)
}

// Submit handles POST /api/orders/{id}/submit
func (h *OrderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	id := r.PathValue("id")
	progress, err := h.orders.SubmitOrder(r.Context(), actor, id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.respondProgress(w, r, actor, id, progress)
}

// Confirm handles POST /api/orders/{id}/confirm/{userId}
func (h *OrderHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actor, err := actorOf(r)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	id := r.PathValue("id")
	progress, err := h.orders.ConfirmOrder(r.Context(), actor, id, r.PathValue("userId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.respondProgress(w, r, actor, id, progress)
}

func (h *OrderHandler) respondProgress(w http.ResponseWriter, r *http.Request, actor domain.Actor, orderID string, p *domain.Progress) {
	order, err := h.orders.GetOrder(r.Context(), actor, orderID)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.progressView(r, order, p))
}
