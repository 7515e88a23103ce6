package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps the domain error taxonomy onto HTTP statuses.
// All of these are recoverable for the shopper; only unknown errors
// surface as 500.
func handleServiceError(w http.ResponseWriter, err error) {
	var notFound *service.ProductNotFoundError
	var stock *service.InsufficientStockError

	switch {
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.As(err, &stock):
		respondError(w, http.StatusBadRequest, "insufficient_stock", stock.Error())
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, "product_not_found", notFound.Error())
	case errors.Is(err, repository.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, service.ErrConcurrencyConflict):
		respondError(w, http.StatusConflict, "concurrency_conflict", err.Error())
	case errors.Is(err, service.ErrIllegalTransition):
		respondError(w, http.StatusBadRequest, "illegal_transition", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
