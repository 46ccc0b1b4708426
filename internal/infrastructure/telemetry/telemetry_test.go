package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "test"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.LogsEnabled())
	assert.NotNil(t, p.LoggerProvider())
	p.EnableSpanProfiles()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestStartProfiler_Disabled(t *testing.T) {
	p, err := StartProfiler(ProfilerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.Running())
	assert.NoError(t, p.Stop())

	_, err = StartProfiler(ProfilerConfig{Enabled: true}, zap.NewNop())
	assert.Error(t, err, "server address is required")
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStartSpan_RecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "automation.step")
	EndSpan(span, errors.New("boom"))
	_, ok := StartSpan(context.Background(), "automation.step.ok")
	EndSpan(ok, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "automation.step", spans[0].Name())
	assert.Equal(t, "boom", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1)
}

func TestInstrumentDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	assert.NoError(t, InstrumentDB(db, DBTracingConfig{}))
	assert.NoError(t, InstrumentDB(db, DBTracingConfig{Enabled: true}))
}
