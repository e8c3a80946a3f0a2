package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/farmorders/internal/catalog"
)

// CatalogHandler returns the orderable blocks grouped by category
type CatalogHandler struct {
	log *slog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(log *slog.Logger) *CatalogHandler {
	return &CatalogHandler{log: log}
}

// ServeHTTP implements the HTTP handler for the catalog
func (h *CatalogHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type BlockResponse struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	type CategoryResponse struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Blocks []BlockResponse `json:"blocks"`
	}

	categories := make([]CategoryResponse, 0)
	for _, c := range catalog.Categories() {
		entry := CategoryResponse{ID: c.ID, Name: c.Name, Blocks: make([]BlockResponse, 0)}
		for _, b := range catalog.ByCategory(c.ID) {
			entry.Blocks = append(entry.Blocks, BlockResponse{ID: b.ID, Name: b.Name})
		}
		categories = append(categories, entry)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
	})
}
