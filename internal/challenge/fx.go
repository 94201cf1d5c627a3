package challenge

import (
	"go.uber.org/fx"

	"github.com/satgate/satgate/internal/challenge/service"
)

var Module = fx.Module("challenge.service",
	fx.Provide(service.New),
)
