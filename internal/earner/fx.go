package earner

import (
	"github.com/satgate/satgate/internal/earner/repository"
	"github.com/satgate/satgate/internal/earner/service"
	"go.uber.org/fx"
)

var Module = fx.Module("earner.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
