package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/iotd-api/internal/service"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, map[string]ReadinessCheck{"postgres": ok}).Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/ready", nil)
	NewMetricsHandler(nil, map[string]ReadinessCheck{"postgres": ok, "redis": down}).Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "redis")
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/iotd/:stage/queue", http.StatusOK, 10*time.Millisecond)
	metrics.RecordPromotion(iotd.StageReview, service.OutcomePromoted, "")

	c, w := newGinContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(metrics, nil).Prometheus(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "iotd_promotions_total")

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	NewMetricsHandler(nil, nil).Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
