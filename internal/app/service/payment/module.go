package payment

import "go.uber.org/fx"

// Module exposes the payment reconciler via Fx. The Gateway implementation is
// provided by the platform module (internal/platform/alipay).
var Module = fx.Options(
	fx.Provide(NewService),
)
