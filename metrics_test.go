package libemit

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountDispatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	emitter := NewEmitter(WithLoopRegistry(NewLoopRegistry()), WithMetrics(m))
	asInt := NewEvent[int](1)
	asString := NewEvent[string](1)

	asInt.On(emitter, func(int) error { return nil })
	asInt.On(emitter, func(int) error { return nil }, WithMode(Async))
	failing := asString.On(emitter, func(string) error { return errors.New("nope") })
	assert.Equal(t, 3.0, testutil.ToFloat64(m.listeners))

	require.NoError(t, asInt.Emit(emitter, 1))
	require.NoError(t, emitter.Wait(context.Background()))
	assert.Error(t, asString.Emit(emitter, "x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.emits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("immediate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("async")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("immediate")))
	// Each emit skipped the listeners of the other signature.
	assert.Equal(t, 3.0, testutil.ToFloat64(m.mismatches))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.pending))

	emitter.Off(failing)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.listeners))
	emitter.Close()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.listeners))
}

func TestMetricsRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.emitted()
		m.delivered(Async, nil)
		m.mismatched()
		m.listenersAdded(1)
		m.asyncStarted()
		m.asyncFinished()
	})
}
