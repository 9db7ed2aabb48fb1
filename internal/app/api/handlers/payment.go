package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/moleart/turnstile/internal/app/api/middleware"
	"github.com/moleart/turnstile/internal/app/service/payment"
	"github.com/moleart/turnstile/internal/app/service/subscription"
	"github.com/moleart/turnstile/pkg/logctx"
	"github.com/moleart/turnstile/pkg/response"
)

type createOrderRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// ApiCreateOrder starts a purchase: creates a gateway order and the pending
// payment row, and returns the scannable code for the client to render.
func ApiCreateOrder(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := svc.CreateOrder(c.Request.Context(), userID, req.PlanID)
		if err != nil {
			if errors.Is(err, subscription.ErrPlanNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
			} else {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			}
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// ApiPollOrderStatus resolves the payment's current status, completing it
// when the gateway reports the order paid.
func ApiPollOrderStatus(svc *payment.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		res, err := svc.ReconcileByPoll(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			if errors.Is(err, payment.ErrPaymentNotFound) {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeNotFound, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// ApiAlipayNotify receives the gateway's asynchronous push. The response body
// is the literal "success" or "fail" string the gateway's retry loop expects,
// not the JSON envelope.
func ApiAlipayNotify(svc *payment.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			logctx.FromGin(c, log).Warnw("notify_parse_failed", "err", err)
			c.String(http.StatusOK, "fail")
			return
		}
		if err := svc.ReconcileByNotification(c.Request.Context(), c.Request.Form); err != nil {
			logctx.FromGin(c, log).Warnw("notify_handle_failed", "err", err)
			c.String(http.StatusOK, "fail")
			return
		}
		c.String(http.StatusOK, "success")
	}
}

func RegisterPaymentRoutes(r gin.IRouter, svc *payment.Service) {
	r.POST("/payment/orders", ApiCreateOrder(svc))
	r.GET("/payment/orders/:id/status", ApiPollOrderStatus(svc))
}

// RegisterPaymentNotifyRoutes mounts the unauthenticated gateway callback.
func RegisterPaymentNotifyRoutes(r gin.IRouter, svc *payment.Service, log *zap.SugaredLogger) {
	r.POST("/notify/alipay", ApiAlipayNotify(svc, log))
}
