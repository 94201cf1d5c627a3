package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FeesConfig carries the pricing knobs operators tune without a restart.
type FeesConfig struct {
	PlatformFeePercent int64  `mapstructure:"platformFeePercent"`
	VoucherTTLMinutes  int64  `mapstructure:"voucherTTLMinutes"`
	MinTopupSats       int64  `mapstructure:"minTopupSats"`
	SweepMinSats       int64  `mapstructure:"sweepMinSats"`
	InvoiceMemo        string `mapstructure:"invoiceMemo"`
}

func DefaultFeesConfig() FeesConfig {
	return FeesConfig{
		PlatformFeePercent: 5,
		VoucherTTLMinutes:  60,
		MinTopupSats:       10,
		SweepMinSats:       1000,
		InvoiceMemo:        "satgate top-up",
	}
}

func (c FeesConfig) VoucherTTL() time.Duration {
	return time.Duration(c.VoucherTTLMinutes) * time.Minute
}

type FeeConfigHolder struct {
	current atomic.Value // holds FeesConfig
}

func NewFeeConfigHolder() (*FeeConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("fees")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/satgate/config") // Volume-mounted config
	v.AddConfigPath("/etc/satgate")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("SATGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeesConfig()
	v.SetDefault("fees.platformFeePercent", defaults.PlatformFeePercent)
	v.SetDefault("fees.voucherTTLMinutes", defaults.VoucherTTLMinutes)
	v.SetDefault("fees.minTopupSats", defaults.MinTopupSats)
	v.SetDefault("fees.sweepMinSats", defaults.SweepMinSats)
	v.SetDefault("fees.invoiceMemo", defaults.InvoiceMemo)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg FeesConfig
	if err := v.UnmarshalKey("fees", &cfg); err != nil {
		return nil, err
	}
	if err := validateFeesConfig(cfg); err != nil {
		return nil, err
	}

	holder := &FeeConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated FeesConfig
		if err := v.UnmarshalKey("fees", &updated); err != nil {
			log.Printf("[fees-config] reload failed: %v", err)
			return
		}
		if err := validateFeesConfig(updated); err != nil {
			log.Printf("[fees-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[fees-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *FeeConfigHolder) Get() FeesConfig {
	return h.current.Load().(FeesConfig)
}

// NewStaticFeeConfigHolder returns a holder pinned to cfg, for tests.
func NewStaticFeeConfigHolder(cfg FeesConfig) *FeeConfigHolder {
	holder := &FeeConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateFeesConfig(cfg FeesConfig) error {
	if cfg.PlatformFeePercent < 0 || cfg.PlatformFeePercent > 100 {
		return errors.New("fees.platformFeePercent must be between 0 and 100")
	}
	if cfg.VoucherTTLMinutes <= 0 {
		return errors.New("fees.voucherTTLMinutes must be positive")
	}
	if cfg.MinTopupSats < 1 {
		return errors.New("fees.minTopupSats must be at least 1")
	}
	if cfg.SweepMinSats < 1 {
		return errors.New("fees.sweepMinSats must be at least 1")
	}
	return nil
}
