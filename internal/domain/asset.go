package domain

import (
	"errors"
	"strings"
)

// Asset represents a crypto asset the kiosk trades
type Asset string

const (
	AssetBTC  Asset = "BTC"
	AssetUSDT Asset = "USDT"
)

// CommunicationMethod represents the channel used to deliver verification codes
type CommunicationMethod string

const (
	MethodWhatsApp CommunicationMethod = "WHATSAPP"
	MethodSMS      CommunicationMethod = "SMS"
)

// ParseAsset converts user input ("btc", "USDT") to an Asset
func ParseAsset(s string) (Asset, error) {
	switch Asset(strings.ToUpper(strings.TrimSpace(s))) {
	case AssetBTC:
		return AssetBTC, nil
	case AssetUSDT:
		return AssetUSDT, nil
	default:
		return "", errors.New("unsupported crypto asset: " + s)
	}
}

// ParseCommunicationMethod converts user input to a CommunicationMethod
func ParseCommunicationMethod(s string) (CommunicationMethod, error) {
	switch CommunicationMethod(strings.ToUpper(strings.TrimSpace(s))) {
	case MethodWhatsApp:
		return MethodWhatsApp, nil
	case MethodSMS:
		return MethodSMS, nil
	default:
		return "", errors.New("unsupported communication method: " + s)
	}
}

// AssetInfo holds display and precision metadata for an asset
type AssetInfo struct {
	Asset    Asset
	Name     string
	Network  string // e.g. "Lightning" or "TRC20"
	Decimals int32  // precision crypto amounts are rounded to
}

// Validate ensures the asset metadata is usable for pricing
func (a *AssetInfo) Validate() error {
	if a.Asset == "" {
		return errors.New("asset symbol cannot be empty")
	}

	if a.Network == "" {
		return errors.New("asset network cannot be empty")
	}

	if a.Decimals < 0 || a.Decimals > 18 {
		return errors.New("asset decimals must be between 0 and 18")
	}

	return nil
}

// DefaultAssets returns the asset catalogue used when configuration is absent
func DefaultAssets() map[Asset]AssetInfo {
	return map[Asset]AssetInfo{
		AssetBTC:  {Asset: AssetBTC, Name: "Bitcoin", Network: "Lightning", Decimals: 8},
		AssetUSDT: {Asset: AssetUSDT, Name: "Tether USD", Network: "TRC20", Decimals: 6},
	}
}
