package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/numina/billing/internal/app/api/middleware"
	"github.com/numina/billing/internal/app/service/payment_attempts"
	cfgpkg "github.com/numina/billing/pkg/config"
	"github.com/numina/billing/pkg/response"
)

// @Summary      Scan payment attempts
// @Description  Admin listing of payment attempts with filters, paging and sorting.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body payment_attempts.ScanAttemptsRequest true "Scan request"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /api/v1/admin/payment_attempts/scan [post]
func ApiScanPaymentAttempts(store payment_attempts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment_attempts.ScanAttemptsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res, err := store.ScanAttempts(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, cfg *cfgpkg.Config, store payment_attempts.Store) {
	r.Use(mw.AdminAuthMiddleware(cfg.Admin.JWTSecret))
	r.POST("/payment_attempts/scan", ApiScanPaymentAttempts(store))
}
