package apikey

import (
	"github.com/satgate/satgate/internal/apikey/repository"
	"github.com/satgate/satgate/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
