package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moleart/turnstile/internal/app/api/middleware"
	"github.com/moleart/turnstile/internal/app/service/quota"
	"github.com/moleart/turnstile/pkg/response"
)

// ApiQuotaLimits reports the caller's effective limits after the lazy daily
// reset.
func ApiQuotaLimits(svc *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		limits, err := svc.Describe(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, quota.ErrUserNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(limits))
	}
}

func ApiQuotaStats(svc *quota.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		stats, err := svc.Stats(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, quota.ErrUserNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(stats))
	}
}

func RegisterQuotaRoutes(r gin.IRouter, svc *quota.Service) {
	r.GET("/quota/limits", ApiQuotaLimits(svc))
	r.GET("/quota/stats", ApiQuotaStats(svc))
}
