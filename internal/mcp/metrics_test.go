package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/newsrag/internal/errs"
	"github.com/fyrsmithlabs/newsrag/internal/query"
)

func newTestMetrics(t *testing.T) (*Metrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := &Metrics{
		meter:  mp.Meter(instrumentationName),
		logger: zap.NewNop(),
	}
	m.init()
	return m, reader
}

// sums collects the int64 sums by metric name.
func sums(t *testing.T, reader *metric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				out[md.Name] = total
			case metricdata.Histogram[float64]:
				var count uint64
				for _, dp := range data.DataPoints {
					count += dp.Count
				}
				out[md.Name] = int64(count)
			}
		}
	}
	return out
}

func TestMetrics_RecordInvocation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordInvocation(ctx, "news_answer", 100*time.Millisecond, nil)
	m.RecordInvocation(ctx, "news_answer", 50*time.Millisecond, errs.Generation("answer.generate", errors.New("quota")))

	got := sums(t, reader)
	assert.Equal(t, int64(2), got["newsrag.mcp.tool.invocations_total"])
	assert.Equal(t, int64(2), got["newsrag.mcp.tool.duration_seconds"])
	assert.Equal(t, int64(1), got["newsrag.mcp.tool.errors_total"])
}

func TestMetrics_ActiveRequests(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.IncrementActive(ctx, "news_verify")
	m.IncrementActive(ctx, "news_verify")
	m.DecrementActive(ctx, "news_verify")

	assert.Equal(t, int64(1), sums(t, reader)["newsrag.mcp.tool.active_requests"])
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"empty question", query.ErrEmptyQuestion, "validation_error"},
		{"deadline", context.DeadlineExceeded, "timeout"},
		{"generation", errs.Generation("op", errors.New("x")), "generation_error"},
		{"upstream", errs.Upstream("op", errors.New("x")), "upstream_error"},
		{"configuration", errs.Configuration("op", errors.New("x")), "configuration_error"},
		{"generic error", errors.New("something went wrong"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, categorizeError(tt.err))
		})
	}
}
