package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moleart/turnstile/internal/app/service/subscription"
	"github.com/moleart/turnstile/pkg/response"
)

func ApiListPlans(svc *subscription.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := svc.ListPlans(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(plans))
	}
}

func RegisterPlanRoutes(r gin.IRouter, svc *subscription.Service) {
	r.GET("/plans", ApiListPlans(svc))
}
