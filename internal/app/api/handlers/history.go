package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moleart/turnstile/internal/app/api/middleware"
	"github.com/moleart/turnstile/internal/app/service/history"
	"github.com/moleart/turnstile/pkg/response"
)

func ApiListHistory(svc *history.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.GetUserID(c)
		if !ok {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeUnauthorized, nil))
			return
		}

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

		res, err := svc.List(c.Request.Context(), userID, page, pageSize)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterHistoryRoutes(r gin.IRouter, svc *history.Service) {
	r.GET("/history", ApiListHistory(svc))
}
