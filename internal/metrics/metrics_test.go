package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCharge(t *testing.T) {
	before := testutil.ToFloat64(chargesTotal.WithLabelValues("account_purchase", "INSUFFICIENT_CREDIT"))
	amountBefore := testutil.ToFloat64(chargedAmount.WithLabelValues("account_purchase"))

	ObserveCharge("account_purchase", "INSUFFICIENT_CREDIT", 3000)
	ObserveCharge("account_purchase", "OK", 3000)

	assert.Equal(t, before+1, testutil.ToFloat64(chargesTotal.WithLabelValues("account_purchase", "INSUFFICIENT_CREDIT")))
	assert.Equal(t, amountBefore+3000, testutil.ToFloat64(chargedAmount.WithLabelValues("account_purchase")))
}

func TestObserveReceiptAndCommission(t *testing.T) {
	topupBefore := testutil.ToFloat64(topupAmount)
	commissionBefore := testutil.ToFloat64(commissionAmount)

	ObserveReceipt("approve", "OK", 50000)
	ObserveReceipt("approve", "ALREADY_VERIFIED", 50000)
	ObserveCommission(5000)

	assert.Equal(t, topupBefore+50000, testutil.ToFloat64(topupAmount))
	assert.Equal(t, commissionBefore+5000, testutil.ToFloat64(commissionAmount))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `panel_wallet_http_requests_total{method="GET",path="/ping",status="200"}`))
}
