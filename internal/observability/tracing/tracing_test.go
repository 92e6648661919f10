package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitWithExporter_RecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitWithExporter(Config{Enabled: true, ServiceName: "docflow-test"}, exporter)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "workflow.approve")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "workflow.approve", spans[0].Name)

	again, err := InitWithExporter(Config{Enabled: true}, tracetest.NewInMemoryExporter())
	require.NoError(t, err)
	assert.Same(t, tp, again, "first initialisation wins")
}
