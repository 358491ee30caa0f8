package libemit

import (
	"context"

	"go.uber.org/fx"
)

// ModuleParams are the optional inputs of Module.
type ModuleParams struct {
	fx.In

	Logger  Logger   `optional:"true"`
	Metrics *Metrics `optional:"true"`
}

// Module provides the process-wide *LoopRegistry and an *Emitter posting
// to it. On stop the emitter is closed and in-flight Async callbacks are
// awaited until the stop context expires.
func Module() fx.Option {
	return fx.Module("libemit",
		fx.Provide(DefaultLoopRegistry),
		fx.Provide(ProvideEmitter),
	)
}

// ProvideEmitter builds the emitter and ties its shutdown to lc.
func ProvideEmitter(lc fx.Lifecycle, loops *LoopRegistry, p ModuleParams) *Emitter {
	e := NewEmitter(
		WithLoopRegistry(loops),
		WithLogger(p.Logger),
		WithMetrics(p.Metrics),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			e.Close()
			return e.Wait(ctx)
		},
	})

	return e
}
