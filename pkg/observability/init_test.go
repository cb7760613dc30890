package observability

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/ajitpratap0/tidepool/pkg/config"
	"github.com/ajitpratap0/tidepool/pkg/storage"
)

type stubTxn struct{}

func (stubTxn) Mode() storage.Mode { return storage.ModeTxn }
func (stubTxn) Kind() storage.Kind { return storage.KindKeyValue }
func (stubTxn) Commit(context.Context) error { return nil }
func (stubTxn) Rollback(context.Context) error { return nil }

func TestInitTracingExportsTransactionSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	tr, err := InitTracing(config.TracingConfig{ServiceName: "tidepool-test", SampleRate: 1}, "test", &buf)
	require.NoError(t, err)

	ctx := storage.WithAPI(context.Background(), stubTxn{})
	boom := stderrors.New("boom")
	err = storage.RunTransaction(ctx, func(context.Context, storage.Txn) error { return boom })
	assert.Same(t, boom, err)

	require.NoError(t, tr.Shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "tidepool.RunTransaction")
	assert.Contains(t, out, "tidepool-test")
	assert.Contains(t, out, "txn.reused")
}

func TestInitTracingNeverSample(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	tr, err := InitTracing(config.TracingConfig{ServiceName: "quiet", SampleRate: 0}, "test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "dropped")
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))
	assert.Empty(t, buf.String())
}

func TestShutdownNil(t *testing.T) {
	var tr *Tracing
	assert.NoError(t, tr.Shutdown(context.Background()))
}
