package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "memberbudget/internal/errors"
	"memberbudget/internal/logger"
	"memberbudget/internal/period"
)

// ErrorResponse documents the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// getUserID extracts the authenticated user ID from the Gin context.
// Returns ErrUnauthorized if not present.
func getUserID(c *gin.Context) (string, error) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", apperrors.ErrUnauthorized
	}
	return userID.(string), nil
}

// parsePeriodQuery reads optional month/year query parameters, defaulting to
// the current period when both are absent.
func parsePeriodQuery(c *gin.Context, clock period.Clock) (period.Period, error) {
	monthStr := c.Query("month")
	yearStr := c.Query("year")
	if monthStr == "" && yearStr == "" {
		return period.Current(clock), nil
	}

	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return period.Period{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid month")
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return period.Period{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year")
	}

	p := period.Period{Month: month, Year: year}
	if !p.Valid() {
		return period.Period{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid period")
	}
	return p, nil
}

// respondWithError writes a consistent JSON error response. If the error is an
// *AppError it uses the error's status code, code, and message. Otherwise it
// logs the unexpected error and returns a generic internal server error.
func respondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", c.Request.URL.Path,
			)
		}
		c.JSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	logger.Get().Errorw("unexpected error",
		"error", err.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	c.JSON(apperrors.ErrInternalServer.StatusCode, gin.H{
		"error": gin.H{
			"code":    apperrors.ErrInternalServer.Code,
			"message": apperrors.ErrInternalServer.Message,
		},
	})
}
