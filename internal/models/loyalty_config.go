package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexFloat accepts both JSON numbers and numeric strings. Restaurant loyalty
// configuration blobs written by older dashboard versions store numbers as
// strings ("15" instead of 15); they are normalized here, once, at parse time.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(f))
}

type WelcomeConfig struct {
	Value FlexFloat `json:"value"` // percentage off for the welcome gift
}

type LoyalConfig struct {
	Type      string    `json:"type"` // discount | item
	Value     FlexFloat `json:"value"`
	ItemName  string    `json:"item_name,omitempty"`
	Threshold FlexFloat `json:"threshold"` // cumulative completed-order spend in euros
}

type RecoveryConfig struct {
	Type      string    `json:"type"`
	Value     FlexFloat `json:"value"`
	Delay     FlexFloat `json:"delay"`     // days away before a return counts as recovery
	Frequency FlexFloat `json:"frequency"` // minimum days between recovery grants
	Active    bool      `json:"active"`
}

// LoyaltyConfig is the per-restaurant promotion configuration, stored as a
// JSON blob on the restaurant row. Parse then Normalize; downstream code never
// re-checks field presence.
type LoyaltyConfig struct {
	IsAutoPromoOn         bool           `json:"isAutoPromoOn"`
	PointsPerEuro         FlexFloat      `json:"points_per_euro"`
	PointsSystemEnabled   bool           `json:"points_system_enabled"`
	GiftConversionEnabled bool           `json:"gift_conversion_enabled"`
	Welcome               WelcomeConfig  `json:"welcomeConfig"`
	Loyal                 LoyalConfig    `json:"loyalConfig"`
	Recovery              RecoveryConfig `json:"recoveryConfig"`
}

// DefaultLoyaltyConfig returns the configuration applied to restaurants that
// have never touched their loyalty settings.
func DefaultLoyaltyConfig() LoyaltyConfig {
	cfg := LoyaltyConfig{}
	cfg.Normalize()
	return cfg
}

// Normalize fills defaults for every zero-valued field so that call sites can
// rely on the struct unconditionally.
func (c *LoyaltyConfig) Normalize() {
	if c.PointsPerEuro <= 0 {
		c.PointsPerEuro = 10
	}
	if c.Welcome.Value <= 0 {
		c.Welcome.Value = 10
	}
	if c.Loyal.Type == "" {
		c.Loyal.Type = RewardTypeDiscount
	}
	if c.Loyal.Value <= 0 {
		c.Loyal.Value = 10
	}
	if c.Loyal.Threshold <= 0 {
		c.Loyal.Threshold = 50
	}
	if c.Recovery.Type == "" {
		c.Recovery.Type = RewardTypeDiscount
	}
	if c.Recovery.Value <= 0 {
		c.Recovery.Value = 10
	}
	if c.Recovery.Delay <= 0 {
		c.Recovery.Delay = 30
	}
	if c.Recovery.Frequency <= 0 {
		c.Recovery.Frequency = 30
	}
}

// ParseLoyaltyConfig decodes a stored configuration blob and normalizes it.
// An empty blob yields the defaults.
func ParseLoyaltyConfig(blob []byte) (LoyaltyConfig, error) {
	cfg := LoyaltyConfig{}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.Normalize()
	return cfg, nil
}
