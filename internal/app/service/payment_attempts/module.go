package payment_attempts

import "go.uber.org/fx"

// Module exposes the attempts store via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
