package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TraceConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = InitTracing(context.Background(), TraceConfig{Exporter: "jaeger"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, span := Tracer().Start(context.Background(), "test")
	span.End()
}

func TestMetricsAreExported(t *testing.T) {
	CartValidations.WithLabelValues(Result(false)).Inc()
	DeductionOutcomes.WithLabelValues(OutcomeCommitted).Inc()
	assert.Equal(t, "valid", Result(true))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `cafepos_cart_validations_total{result="invalid"}`)
	assert.Contains(t, body, `cafepos_deduction_outcomes_total{outcome="committed"}`)
	assert.Contains(t, body, "cafepos_movement_dropped_total")
}
