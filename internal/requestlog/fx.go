package requestlog

import (
	"github.com/satgate/satgate/internal/requestlog/repository"
	"github.com/satgate/satgate/internal/requestlog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("requestlog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
