package config

import (
	"fmt"
	"os"
	"time"

	"github.com/automoto/arena-sync/shared/netconfig"
	"gopkg.in/yaml.v3"
)

// SignerConfig contains the EIP-712 domain and key used for authorizations.
type SignerConfig struct {
	PrivateKeyHex     string        `yaml:"privateKey"`
	ChainID           int64         `yaml:"chainId"`
	VerifyingContract string        `yaml:"verifyingContract"`
	DomainName        string        `yaml:"domainName"`
	DomainVersion     string        `yaml:"domainVersion"`
	Validity          time.Duration `yaml:"validity"` // Signature deadline offset
}

// MetadataConfig contains the static token metadata settings.
type MetadataConfig struct {
	CollectionName string `yaml:"collectionName"`
	ImageBaseURL   string `yaml:"imageBaseURL"`
}

// MasterConfig contains the directory and authorization server settings.
type MasterConfig struct {
	Port          int            `yaml:"port"`
	TTL           time.Duration  `yaml:"ttl"`     // Session expiry without heartbeat
	AppName       string         `yaml:"appName"` // gdata application directory
	ReceiptSecret string         `yaml:"receiptSecret"`
	ReceiptIssuer string         `yaml:"receiptIssuer"`
	RatePerSecond float64        `yaml:"ratePerSecond"` // Authorization requests per client
	RateBurst     int            `yaml:"rateBurst"`
	Signer        SignerConfig   `yaml:"signer"`
	Metadata      MetadataConfig `yaml:"metadata"`
	// Thresholds maps a target level to the points required to reach it.
	Thresholds map[int]int `yaml:"thresholds"`
}

// DefaultMaster returns the master configuration used when no file overrides it.
func DefaultMaster() MasterConfig {
	return MasterConfig{
		Port:          8080,
		TTL:           90 * time.Second,
		AppName:       "arena-sync-master",
		ReceiptIssuer: "arena-sync",
		RatePerSecond: 2,
		RateBurst:     5,
		Signer: SignerConfig{
			ChainID:       1,
			DomainName:    "ArenaTanks",
			DomainVersion: "1",
			Validity:      15 * time.Minute,
		},
		Metadata: MetadataConfig{
			CollectionName: "Arena Tank",
			ImageBaseURL:   "https://example.invalid/images",
		},
		Thresholds: map[int]int{
			1: 0, 2: 5, 3: 12, 4: 20, 5: 30,
			6: 45, 7: 60, 8: 80, 9: 100, 10: 130,
		},
	}
}

// LoadMaster overlays the YAML file at path on top of DefaultMaster.
func LoadMaster(path string) (MasterConfig, error) {
	cfg := DefaultMaster()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read master config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse master config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that every level has a threshold and thresholds never decrease.
func (m MasterConfig) Validate() error {
	prev := -1
	for lvl := netconfig.MinTokenLevel; lvl <= netconfig.MaxTokenLevel; lvl++ {
		pts, ok := m.Thresholds[lvl]
		if !ok {
			return fmt.Errorf("missing threshold for level %d", lvl)
		}
		if pts < prev {
			return fmt.Errorf("threshold for level %d (%d) below level %d (%d)", lvl, pts, lvl-1, prev)
		}
		prev = pts
	}
	if m.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	return nil
}
