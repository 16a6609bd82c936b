package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// MatchConfig contains the match coordination timings.
type MatchConfig struct {
	Duration         time.Duration // Match length started on Idle -> Running
	ResyncCadence    time.Duration // Authority timer resync broadcast interval
	TickInterval     time.Duration // How often expiry and recovery are checked
	AuthorityTimeout time.Duration // Silence after which a mirror drops the authority (0 = never)
	Strict           bool          // Panic on invariant violations instead of logging
}

// BusConfig contains the NATS connection settings for the event broadcaster.
type BusConfig struct {
	URL           string
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// PresenceConfig contains the membership heartbeat settings.
type PresenceConfig struct {
	Interval time.Duration // Alive announcement period
	TTL      time.Duration // Silence after which a peer is considered gone
}

// BridgeConfig contains the UI websocket bridge settings.
type BridgeConfig struct {
	Port     uint
	TickRate int // NetMatchState replication rate (updates per second)
	Name     string
	Version  string // Required UI client version (empty = accept any)
}

// RegistrationConfig contains the master directory registration settings.
type RegistrationConfig struct {
	MasterURL string // Empty disables registration
	Address   string
	Region    string
	Interval  time.Duration
}

// ReceiptConfig contains the score receipt signing settings shared with the master.
type ReceiptConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Config is the complete peer configuration. It is built once in main and
// passed down explicitly.
type Config struct {
	PeerID       uint
	PlayerName   string
	SessionID    string
	Dev          bool
	Match        MatchConfig
	Bus          BusConfig
	Presence     PresenceConfig
	Bridge       BridgeConfig
	Registration RegistrationConfig
	Receipt      ReceiptConfig
}

// Default returns the configuration used when no flags or env override it.
func Default() Config {
	return Config{
		PlayerName: "Tank",
		Match: MatchConfig{
			Duration:         3 * time.Minute,
			ResyncCadence:    5 * time.Second,
			TickInterval:     100 * time.Millisecond,
			AuthorityTimeout: 15 * time.Second,
		},
		Bus: BusConfig{
			URL:           "nats://localhost:4222",
			Name:          "arena-peer",
			Timeout:       10 * time.Second,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: 5,
		},
		Presence: PresenceConfig{
			Interval: 2 * time.Second,
			TTL:      10 * time.Second,
		},
		Bridge: BridgeConfig{
			Port:     7373,
			TickRate: 10,
			Name:     "Arena Peer",
		},
		Registration: RegistrationConfig{
			Interval: 30 * time.Second,
		},
		Receipt: ReceiptConfig{
			Issuer: "arena-sync",
			TTL:    24 * time.Hour,
		},
	}
}

// Validate reports the first timing that would break the coordinator.
func (m MatchConfig) Validate() error {
	switch {
	case m.Duration <= 0:
		return fmt.Errorf("match duration must be positive")
	case m.ResyncCadence <= 0:
		return fmt.Errorf("resync cadence must be positive")
	case m.TickInterval <= 0:
		return fmt.Errorf("tick interval must be positive")
	case m.AuthorityTimeout != 0 && m.AuthorityTimeout < m.ResyncCadence:
		return fmt.Errorf("authority timeout %s shorter than resync cadence %s",
			m.AuthorityTimeout, m.ResyncCadence)
	}
	return nil
}

// Validate reports the first setting that would break the peer.
func (c Config) Validate() error {
	if err := c.Match.Validate(); err != nil {
		return err
	}
	switch {
	case c.PeerID == 0:
		return fmt.Errorf("peer id must be non-zero")
	case c.Presence.TTL <= c.Presence.Interval:
		return fmt.Errorf("presence ttl must exceed the heartbeat interval")
	case c.Bridge.TickRate <= 0:
		return fmt.Errorf("bridge tick rate must be positive")
	}
	return nil
}

// BindFlags registers every setting on fs, using the current values as defaults.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.UintVar(&c.PeerID, "peer", c.PeerID, "Transport peer id (non-zero)")
	fs.StringVar(&c.PlayerName, "name", c.PlayerName, "Display name")
	fs.StringVar(&c.SessionID, "session", c.SessionID, "Match session id (empty = generate)")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "Development logging")

	fs.DurationVar(&c.Match.Duration, "duration", c.Match.Duration, "Match duration")
	fs.DurationVar(&c.Match.ResyncCadence, "resync", c.Match.ResyncCadence, "Timer resync cadence")
	fs.DurationVar(&c.Match.TickInterval, "tick", c.Match.TickInterval, "Coordinator tick interval")
	fs.DurationVar(&c.Match.AuthorityTimeout, "authority-timeout", c.Match.AuthorityTimeout, "Authority silence timeout (0 = never)")
	fs.BoolVar(&c.Match.Strict, "strict", c.Match.Strict, "Panic on invariant violations")

	fs.StringVar(&c.Bus.URL, "nats", c.Bus.URL, "NATS server URL")
	fs.DurationVar(&c.Presence.Interval, "presence-interval", c.Presence.Interval, "Presence heartbeat interval")
	fs.DurationVar(&c.Presence.TTL, "presence-ttl", c.Presence.TTL, "Presence expiry")

	fs.UintVar(&c.Bridge.Port, "port", c.Bridge.Port, "UI bridge websocket port")
	fs.IntVar(&c.Bridge.TickRate, "tickrate", c.Bridge.TickRate, "UI bridge replication rate")
	fs.StringVar(&c.Bridge.Version, "version", c.Bridge.Version, "Required UI client version (empty = accept any)")

	fs.StringVar(&c.Registration.MasterURL, "master", c.Registration.MasterURL, "Master directory URL (empty = disabled)")
	fs.StringVar(&c.Registration.Address, "address", c.Registration.Address, "Public bridge address announced to the master")
	fs.StringVar(&c.Registration.Region, "region", c.Registration.Region, "Region announced to the master")

	fs.StringVar(&c.Receipt.Secret, "receipt-secret", c.Receipt.Secret, "HMAC secret for score receipts")
}

// LoadEnv loads .env files (missing files are ignored) and applies the
// ARENA_* variables on top of c. Flags parsed afterwards still win.
func (c *Config) LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Bus.URL = v
	}
	if v := os.Getenv("ARENA_MASTER_URL"); v != "" {
		c.Registration.MasterURL = v
	}
	if v := os.Getenv("ARENA_RECEIPT_SECRET"); v != "" {
		c.Receipt.Secret = v
	}
	if v := os.Getenv("ARENA_PEER_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("ARENA_PEER_ID: %w", err)
		}
		c.PeerID = uint(id)
	}
	return nil
}
