package libemit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModuleProvidesEmitter(t *testing.T) {
	var (
		emitter *Emitter
		loops   *LoopRegistry
	)

	app := fxtest.New(t,
		Module(),
		fx.Populate(&emitter, &loops),
	)
	app.RequireStart()

	require.NotNil(t, emitter)
	assert.Same(t, DefaultLoopRegistry(), loops)
	assert.Same(t, loops, emitter.loops)

	app.RequireStop()
	assert.ErrorIs(t, emitter.Emit(1), ErrEmitterClosed)
}

func TestModuleUsesSuppliedLogger(t *testing.T) {
	var buf bytes.Buffer
	var emitter *Emitter

	app := fxtest.New(t,
		Module(),
		fx.Provide(func() Logger { return NewWriterLogger(&buf, LevelDebug) }),
		fx.Populate(&emitter),
	)
	app.RequireStart()

	emitter.On(1, func() error { return nil })
	assert.Contains(t, buf.String(), "registered on event#1")

	app.RequireStop()
}

func TestModuleStopWaitsForAsync(t *testing.T) {
	var emitter *Emitter

	app := fx.New(
		Module(),
		fx.Populate(&emitter),
		fx.NopLogger,
	)
	require.NoError(t, app.Start(context.Background()))

	release := make(chan struct{})
	emitter.On(1, func() error {
		<-release
		return nil
	}, WithMode(Async))
	require.NoError(t, emitter.Emit(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, app.Stop(ctx), "stop gives up while a callback still runs")

	close(release)
	assert.NoError(t, emitter.Wait(context.Background()))
}
