package payment_retry

import "go.uber.org/fx"

// Module exposes the retry orchestrator via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
