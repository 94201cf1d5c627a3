package payout

import (
	"github.com/satgate/satgate/internal/payout/repository"
	"github.com/satgate/satgate/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
