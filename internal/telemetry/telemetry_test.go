package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentorch/config"
	"github.com/BaSui01/agentorch/workflow"
)

// saveAndRestoreGlobals snapshots the global OTel provider and propagator
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobals(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetTextMapPropagator(origProp)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobals(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.tp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledWithOTLP(t *testing.T) {
	saveAndRestoreGlobals(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentorch-test",
		SampleRate:   0.5,
	}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p.tp)

	_, isSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, isSDK)

	// No collector is running; only check Shutdown returns within the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestInit_ExportsRunnerSpans(t *testing.T) {
	saveAndRestoreGlobals(t)

	exporter := tracetest.NewInMemoryExporter()
	cfg := config.TelemetryConfig{Enabled: true, ServiceName: "agentorch-test", SampleRate: 1}
	p, err := Init(context.Background(), cfg, zaptest.NewLogger(t), WithSpanExporter(exporter))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())

	// The runner picks up the global provider when no tracer is injected.
	runner := workflow.NewRunner(workflow.NewDefaultExecutorRegistry(nil, nil), nil)
	def := &workflow.WorkflowDefinition{
		ID:         "traced",
		Nodes:      []workflow.WorkflowNode{{ID: "m", Type: workflow.NodeTypeMonitor}},
		EntryPoint: "m",
	}
	_, err = runner.Run(context.Background(), def, workflow.NewWorkflowSession("s", def.ID, "", time.Now()))
	require.NoError(t, err)

	names := make([]string, 0)
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	assert.ElementsMatch(t, []string{"workflow.session", "workflow.node"}, names)
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestBuildVersion(t *testing.T) {
	// Test binaries report "(devel)", which falls back to "dev".
	assert.Equal(t, "dev", buildVersion())
}
