package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/numina/billing/internal/app/service/payment_attempts"
	"github.com/numina/billing/internal/app/service/payment_retry"
	"github.com/numina/billing/pkg/response"
)

// @Summary      Retry a failed payment
// @Description  Performs one bounded retry of a failed payment intent with a new payment method and returns the terminal outcome.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body payment_retry.RetryPaymentRequest true "Retry request"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/payment/retry [post]
func ApiRetryPayment(orch payment_retry.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req payment_retry.RetryPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}

		res := orch.RetryPayment(c.Request.Context(), &req)
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type canRetryResp struct {
	CanRetry bool `json:"can_retry"`
}

// @Summary      Whether a goal may still retry
// @Description  Reports whether the goal is under the attempt ceiling, letting the UI disable the retry affordance pre-emptively.
// @Tags         Payment
// @Produce      json
// @Param        goal_id path string true "Goal ID"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/payment/can_retry/{goal_id} [get]
func ApiCanRetryPayment(orch payment_retry.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		goalID := c.Param("goal_id")
		if goalID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "goal_id is required"))
			return
		}
		c.JSON(http.StatusOK, response.OKT(canRetryResp{CanRetry: orch.CanRetry(c.Request.Context(), goalID)}))
	}
}

// @Summary      Payment attempt history
// @Description  Lists recorded payment attempts for a goal or a user, newest first.
// @Tags         Payment
// @Produce      json
// @Param        goal_id query string false "Goal ID"
// @Param        user_id query string false "User ID"
// @Success      200  {object}  map[string]any
// @Router       /api/v1/payment/attempts [get]
func ApiListPaymentAttempts(store payment_attempts.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		goalID := c.Query("goal_id")
		userID := c.Query("user_id")

		switch {
		case goalID != "":
			rows, err := store.AttemptsByGoal(c.Request.Context(), goalID)
			if err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.OKT(rows))
		case userID != "":
			rows, err := store.AttemptsByUser(c.Request.Context(), userID)
			if err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
				return
			}
			c.JSON(http.StatusOK, response.OKT(rows))
		default:
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "goal_id or user_id is required"))
		}
	}
}

func RegisterPaymentRoutes(r gin.IRouter, orch payment_retry.Orchestrator, store payment_attempts.Store) {
	r.POST("/retry", ApiRetryPayment(orch))
	r.GET("/can_retry/:goal_id", ApiCanRetryPayment(orch))
	r.GET("/attempts", ApiListPaymentAttempts(store))
}
