package rail

import (
	"github.com/satgate/satgate/internal/config"
	"github.com/satgate/satgate/internal/rail/domain"
	"github.com/satgate/satgate/internal/rail/lnbits"
	"github.com/satgate/satgate/internal/rail/simulated"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// New selects the rail implementation once at startup from configuration.
func New(p Params) domain.Client {
	if p.Config.RailConfigured() {
		p.Log.Info("payment rail configured",
			zap.String("rail", "lnbits"),
			zap.String("url", p.Config.RailURL),
		)
		return lnbits.New(p.Config.RailURL, p.Config.RailAPIKey, p.Config.RailInvoiceExpiry, p.Log)
	}

	p.Log.Warn("no payment rail configured, using simulated rail")
	return simulated.New()
}

var Module = fx.Module("rail",
	fx.Provide(New),
)
