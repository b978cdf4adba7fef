package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/amount"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/ref"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, swapengine.ErrInvalidPair),
		errors.Is(err, swapengine.ErrInvalidPlan),
		errors.Is(err, amount.ErrInvalidAmount),
		errors.Is(err, ref.ErrInvalidSlippage),
		errors.Is(err, ref.ErrTokenNotInPool),
		errors.Is(err, ref.ErrInvalidShares):
		return http.StatusBadRequest
	case errors.Is(err, swapengine.ErrUnknownPlan),
		errors.Is(err, ref.ErrTokenUnknown):
		return http.StatusNotFound
	case errors.Is(err, swapengine.ErrSupersededRequest),
		errors.Is(err, swapengine.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, swapengine.ErrRiskRejected),
		errors.Is(err, ref.ErrInsufficientLiquidity),
		errors.Is(err, ref.ErrUnsupportedPool),
		errors.Is(err, ref.ErrZeroShareSupply):
		return http.StatusUnprocessableEntity
	case errors.Is(err, swapengine.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ref.ErrPoolUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
