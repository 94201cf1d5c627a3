package gateway

import (
	"github.com/satgate/satgate/internal/gateway/repository"
	"github.com/satgate/satgate/internal/gateway/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
