package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"cafepos/pkg/cart"
	"cafepos/pkg/catalog"
	"cafepos/pkg/deduction"
	"cafepos/pkg/order"
	"cafepos/pkg/stock"
	"cafepos/pkg/store"
)

// errorBody is the JSON shape of every failed request.
type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// statusOf maps engine errors onto HTTP status codes and staff-facing details.
func statusOf(err error) (int, any) {
	var (
		validation  *cart.ValidationError
		abort       *deduction.AbortError
		referential *deduction.ReferentialError
		invalid     validator.ValidationErrors
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, validation.Result
	case errors.As(err, &abort):
		return http.StatusConflict, abort
	case errors.As(err, &referential):
		return http.StatusConflict, referential
	case order.IsTransition(err):
		return http.StatusConflict, nil
	case errors.Is(err, order.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, nil
	case errors.As(err, &invalid),
		errors.Is(err, order.ErrItemIndex),
		errors.Is(err, cart.ErrLineIndex),
		errors.Is(err, cart.ErrInvalidLine),
		errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidDiscount),
		errors.Is(err, catalog.ErrUnknownVariation),
		errors.Is(err, catalog.ErrVariationRequired),
		errors.Is(err, stock.ErrInvalidQuantity),
		errors.Is(err, stock.ErrUnitMismatch):
		return http.StatusBadRequest, nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusServiceUnavailable, nil
	default:
		return http.StatusInternalServerError, nil
	}
}

// fail writes err with the mapped status.
func (s *Server) fail(c *gin.Context, err error) {
	status, details := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err.Error())
	}
	c.AbortWithStatusJSON(status, errorBody{Error: err.Error(), Details: details})
}

// badRequest reports an undecodable payload.
func (s *Server) badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid request: " + err.Error()})
}
