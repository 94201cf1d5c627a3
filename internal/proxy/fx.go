package proxy

import (
	"go.uber.org/fx"

	"github.com/satgate/satgate/internal/proxy/service"
)

var Module = fx.Module("proxy.service",
	fx.Provide(service.New),
)
