package shipping

import "github.com/shopspring/decimal"

// Config holds a tenant's shipping rate table.
type Config struct {
	FreeShippingEnabled   bool            `json:"freeShippingEnabled"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	HighVolumeThreshold   int             `json:"highVolumeThreshold"`
	StandardRate          decimal.Decimal `json:"standardRate"`
	HighVolumeRate        decimal.Decimal `json:"highVolumeRate"`
}

// DefaultConfig is applied when a tenant has no shipping configuration.
func DefaultConfig() Config {
	return Config{
		FreeShippingEnabled:   true,
		FreeShippingThreshold: decimal.NewFromInt(10000),
		HighVolumeThreshold:   15,
		StandardRate:          decimal.NewFromInt(15),
		HighVolumeRate:        decimal.NewFromInt(20),
	}
}

// OrDefault returns cfg, or DefaultConfig when cfg is nil.
func OrDefault(cfg *Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return *cfg
}
