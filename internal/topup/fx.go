package topup

import (
	"github.com/satgate/satgate/internal/topup/repository"
	"github.com/satgate/satgate/internal/topup/service"
	"go.uber.org/fx"
)

var Module = fx.Module("topup.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
