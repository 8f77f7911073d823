package api

import (
	"github.com/gin-gonic/gin"

	"panel-wallet/internal/metrics"
)

// HealthFunc reports whether backing stores are reachable.
type HealthFunc func(c *gin.Context) error

// NewRouter wires the API routes.
func NewRouter(h *Handler, health HealthFunc) *gin.Engine {
	r := gin.New()

	r.Use(Recovery())
	r.Use(RequestLogger())
	r.Use(metrics.Middleware())

	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c); err != nil {
				c.JSON(503, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	v1 := r.Group("/api/v1", ActorMiddleware())
	{
		v1.GET("/plans", h.ListPlans)

		accounts := v1.Group("/accounts/:id")
		{
			accounts.GET("/balance", h.GetBalance)
			accounts.GET("/transactions", h.ListTransactions)
			accounts.GET("/quote", h.Quote)
			accounts.POST("/charge", h.Charge)
			accounts.POST("/receipts", h.UploadReceipt)
			accounts.POST("/receipts/:receipt_id/submit", h.SubmitReceipt)
			accounts.GET("/notices", h.PendingNotice)
			accounts.POST("/notices/:receipt_id/ack", h.AckNotice)
			accounts.POST("/commission-notices/:receipt_id/ack", h.AckCommissionNotice)
		}

		admin := v1.Group("/admin", RequireStaff())
		{
			admin.GET("/receipts/pending", h.PendingReceipts)
			admin.POST("/receipts/:receipt_id/verify", h.VerifyReceipt)
			admin.POST("/receipts/:receipt_id/reject", h.RejectReceipt)
			admin.POST("/transactions/:id/finalize", h.FinalizeCharge)
			admin.POST("/transactions/:id/fail", h.FailCharge)
			admin.POST("/transactions/:id/refund", h.Refund)
			admin.POST("/accounts/:id/adjust", h.AdjustWallet)
			admin.PUT("/plans/:plan_key/price", h.SetPlanPrice)
		}
	}

	return r
}
