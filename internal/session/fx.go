package session

import (
	"github.com/satgate/satgate/internal/session/repository"
	"github.com/satgate/satgate/internal/session/service"
	"go.uber.org/fx"
)

var Module = fx.Module("session.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
