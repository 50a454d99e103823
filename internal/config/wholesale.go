package config

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/safar/go-sql-checkout/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// wholesaleFile mirrors wholesale.yml. Amounts are read as strings and
// parsed into decimals so that no float rounding creeps in.
type wholesaleFile struct {
	Name  string              `mapstructure:"name"`
	Tiers []wholesaleFileTier `mapstructure:"tiers"`
}

type wholesaleFileTier struct {
	Threshold  string `mapstructure:"threshold"`
	Percentage string `mapstructure:"percentage"`
}

func (f wholesaleFile) toConfig() (pricing.WholesaleConfig, error) {
	cfg := pricing.WholesaleConfig{Name: f.Name}
	for i, t := range f.Tiers {
		threshold, err := decimal.NewFromString(t.Threshold)
		if err != nil {
			return pricing.WholesaleConfig{}, fmt.Errorf("wholesale tier %d threshold: %w", i+1, err)
		}
		pct, err := decimal.NewFromString(t.Percentage)
		if err != nil {
			return pricing.WholesaleConfig{}, fmt.Errorf("wholesale tier %d percentage: %w", i+1, err)
		}
		cfg.Tiers = append(cfg.Tiers, pricing.WholesaleTier{Threshold: threshold, Percentage: pct})
	}
	if cfg.Name == "" {
		cfg.Name = pricing.DefaultWholesaleConfig().Name
	}
	return cfg, cfg.Validate()
}

type WholesaleConfigHolder struct {
	current atomic.Value // holds pricing.WholesaleConfig
}

// NewWholesaleConfigHolder loads wholesale.yml from dir, falling back to the
// default tiers when the file does not exist. Edits to the file are picked
// up while the process runs; an invalid edit keeps the previous tiers.
func NewWholesaleConfigHolder(dir string, log *zap.Logger) (*WholesaleConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("wholesale-config")

	v := viper.New()
	v.SetConfigName("wholesale")
	v.SetConfigType("yml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/checkout")

	holder := &WholesaleConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read wholesale config: %w", err)
		}
		log.Info("wholesale.yml not found, using default tiers")
		holder.current.Store(pricing.DefaultWholesaleConfig())
		return holder, nil
	}

	cfg, err := decodeWholesale(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeWholesale(v)
		if err != nil {
			log.Warn("invalid wholesale config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("wholesale config reloaded", zap.String("file", e.Name), zap.Int("tiers", len(updated.Tiers)))
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticWholesaleConfig wraps a fixed configuration.
func NewStaticWholesaleConfig(cfg pricing.WholesaleConfig) *WholesaleConfigHolder {
	holder := &WholesaleConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *WholesaleConfigHolder) Get() pricing.WholesaleConfig {
	return h.current.Load().(pricing.WholesaleConfig)
}

func decodeWholesale(v *viper.Viper) (pricing.WholesaleConfig, error) {
	var raw wholesaleFile
	if err := v.UnmarshalKey("wholesale", &raw); err != nil {
		return pricing.WholesaleConfig{}, fmt.Errorf("decode wholesale config: %w", err)
	}
	cfg, err := raw.toConfig()
	if err != nil {
		return pricing.WholesaleConfig{}, fmt.Errorf("invalid wholesale config: %w", err)
	}
	return cfg, nil
}
