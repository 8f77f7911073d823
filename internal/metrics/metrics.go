// Package metrics exposes Prometheus counters for ledger outcomes and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chargesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_wallet_charges_total",
			Help: "Charge attempts by transaction type and outcome code",
		},
		[]string{"type", "code"},
	)

	chargedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_wallet_charged_amount_total",
			Help: "Credit debited by successful charges",
		},
		[]string{"type"},
	)

	receiptDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_wallet_receipt_decisions_total",
			Help: "Receipt approve/reject attempts by outcome code",
		},
		[]string{"action", "code"},
	)

	topupAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_wallet_topup_amount_total",
			Help: "Credit added by approved receipts",
		},
	)

	commissionsPaid = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_wallet_commissions_paid_total",
			Help: "Referrer commissions paid",
		},
	)

	commissionAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "panel_wallet_commission_amount_total",
			Help: "Credit paid out as referrer commission",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "panel_wallet_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "panel_wallet_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveCharge records a charge attempt.
func ObserveCharge(txType, code string, amount int64) {
	chargesTotal.WithLabelValues(txType, code).Inc()
	if code == "OK" && amount > 0 {
		chargedAmount.WithLabelValues(txType).Add(float64(amount))
	}
}

// ObserveReceipt records a review decision; amount is the credited top-up.
func ObserveReceipt(action, code string, amount int64) {
	receiptDecisions.WithLabelValues(action, code).Inc()
	if action == "approve" && code == "OK" && amount > 0 {
		topupAmount.Add(float64(amount))
	}
}

// ObserveCommission records a paid commission.
func ObserveCommission(amount int64) {
	commissionsPaid.Inc()
	commissionAmount.Add(float64(amount))
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
