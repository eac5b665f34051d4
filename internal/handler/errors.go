package handler

import (
	"errors"
	"net/http"

	"github.com/LazarusTes/auth-portal-express/internal/limits"
	"github.com/LazarusTes/auth-portal-express/internal/middleware"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/gin-gonic/gin"
)

type InsufficientBalanceDetail struct {
	Balance   string `json:"balance"`
	Requested string `json:"requested"`
}

type LimitExceededDetail struct {
	Window    string `json:"window"`
	Limit     string `json:"limit"`
	Used      string `json:"used"`
	Requested string `json:"requested"`
}

// statusFor maps an error category to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrState), errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrBusinessRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondWithDomainError writes err using its category. Store and unknown
// failures never leak their message.
func respondWithDomainError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	switch status {
	case http.StatusServiceUnavailable:
		c.Header("Retry-After", "1")
		middleware.RespondWithError(c, status, "Service temporarily unavailable, please retry")
		return
	case http.StatusInternalServerError:
		middleware.RespondWithError(c, status, "Internal server error")
		return
	}

	resp := middleware.ErrorResponse{Message: err.Error()}
	var ib *models.InsufficientBalanceError
	var le *limits.LimitExceededError
	switch {
	case errors.As(err, &ib):
		resp.Detail = InsufficientBalanceDetail{Balance: ib.Balance.String(), Requested: ib.Requested.String()}
	case errors.As(err, &le):
		resp.Detail = LimitExceededDetail{
			Window:    string(le.Window),
			Limit:     le.Limit.String(),
			Used:      le.Used.String(),
			Requested: le.Requested.String(),
		}
	}
	c.JSON(status, resp)
}
