// Package config defines the top-level configuration for the turbine bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TURBINEBOT_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Turbine  TurbineConfig  `toml:"turbine"`
	Oracle   OracleConfig   `toml:"oracle"`
	Strategy StrategyConfig `toml:"strategy"`
	Quoter   QuoterConfig   `toml:"quoter"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Session  SessionConfig  `toml:"session"`
	Claims   ClaimsConfig   `toml:"claims"`
	Journal  JournalConfig  `toml:"journal"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey string `toml:"private_key"`
	Address    string `toml:"address"`
}

// TurbineConfig holds Turbine API endpoints and chain parameters.
type TurbineConfig struct {
	ApiHost     string `toml:"api_host"`
	WsHost      string `toml:"ws_host"`
	ApiKey      string `toml:"api_key"`
	ChainID     int    `toml:"chain_id"`
	UsdcAddress string `toml:"usdc_address"`
}

// OracleConfig holds the Pyth Hermes price feed parameters.
type OracleConfig struct {
	HermesHost string   `toml:"hermes_host"`
	FeedID     string   `toml:"feed_id"`
	Timeout    duration `toml:"timeout"`
}

// StrategyConfig selects and parameterizes the pricing policy.
type StrategyConfig struct {
	Name string `toml:"name"`

	PriceAction PriceActionConfig `toml:"price_action"`
	MarketMaker MarketMakerConfig `toml:"market_maker"`
}

// PriceActionConfig holds config for the price_action strategy.
type PriceActionConfig struct {
	ThresholdBps  int     `toml:"threshold_bps"`
	MinConfidence float64 `toml:"min_confidence"`
	MaxConfidence float64 `toml:"max_confidence"`
}

// MarketMakerConfig holds config for the market_maker ladder strategy.
type MarketMakerConfig struct {
	BaseProbability float64 `toml:"base_probability"`
	Sensitivity     float64 `toml:"sensitivity"`
	TimeFactor      float64 `toml:"time_factor"`
	MaxProbability  float64 `toml:"max_probability"`
	BaseSpread      float64 `toml:"base_spread"`
	MinSpread       float64 `toml:"min_spread"`
	SpreadTighten   float64 `toml:"spread_tighten"`
	Levels          int     `toml:"levels"`
	Lambda          float64 `toml:"lambda"`
}

// QuoterConfig holds order placement parameters shared by both quoting shapes.
type QuoterConfig struct {
	OrderSize          float64  `toml:"order_size"`
	MaxPosition        float64  `toml:"max_position"`
	Allocation         float64  `toml:"allocation"`
	RebalanceThreshold float64  `toml:"rebalance_threshold"`
	RebalanceInterval  duration `toml:"rebalance_interval"`
	OrderTTL           duration `toml:"order_ttl"`
	InventorySkew      float64  `toml:"inventory_skew"`
	OneSidedThreshold  float64  `toml:"one_sided_threshold"`
	GuardWindow        duration `toml:"guard_window"`
	GuardFillRatio     float64  `toml:"guard_fill_ratio"`
	GuardCooldown      duration `toml:"guard_cooldown"`
}

// LedgerConfig holds order verification parameters.
type LedgerConfig struct {
	VerifyDelay   duration `toml:"verify_delay"`
	TradeLookback duration `toml:"trade_lookback"`
}

// SessionConfig holds market rotation parameters.
type SessionConfig struct {
	Asset          string   `toml:"asset"`
	Interval       int      `toml:"interval_minutes"`
	PollInterval   duration `toml:"poll_interval"`
	ExpiryGuard    duration `toml:"expiry_guard"`
	ResyncInterval duration `toml:"resync_interval"`
}

// ClaimsConfig holds claim scheduler parameters.
type ClaimsConfig struct {
	CheckInterval duration `toml:"check_interval"`
	ClaimDelay    duration `toml:"claim_delay"`
	MaxAttempts   int      `toml:"max_attempts"`
	BatchClaims   bool     `toml:"batch_claims"`
}

// JournalConfig holds PostgreSQL trade-journal connection parameters. The
// journal is optional; leave dsn empty to run without it.
type JournalConfig struct {
	DSN           string `toml:"dsn"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when addr
// is empty the claim cooldown falls back to an in-process implementation.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Turbine: TurbineConfig{
			ApiHost:     "https://api.turbine.fun",
			WsHost:      "wss://api.turbine.fun/ws",
			ChainID:     10143,
			UsdcAddress: "0xf817257fed379853cDe0fa4F97AB987181B1E5Ea",
		},
		Oracle: OracleConfig{
			HermesHost: "https://hermes.pyth.network",
			FeedID:     "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
			Timeout:    duration{5 * time.Second},
		},
		Strategy: StrategyConfig{
			Name: "price_action",
			PriceAction: PriceActionConfig{
				ThresholdBps:  10,
				MinConfidence: 0.6,
				MaxConfidence: 0.9,
			},
			MarketMaker: MarketMakerConfig{
				BaseProbability: 0.50,
				Sensitivity:     1.5,
				TimeFactor:      1.5,
				MaxProbability:  0.95,
				BaseSpread:      0.02,
				MinSpread:       0.005,
				SpreadTighten:   0.75,
				Levels:          6,
				Lambda:          1.5,
			},
		},
		Quoter: QuoterConfig{
			OrderSize:          5.0,
			MaxPosition:        50.0,
			Allocation:         100.0,
			RebalanceThreshold: 0.02,
			RebalanceInterval:  duration{5 * time.Second},
			OrderTTL:           duration{5 * time.Minute},
			InventorySkew:      0.01,
			OneSidedThreshold:  0.8,
			GuardWindow:        duration{30 * time.Second},
			GuardFillRatio:     0.8,
			GuardCooldown:      duration{20 * time.Second},
		},
		Ledger: LedgerConfig{
			VerifyDelay:   duration{2 * time.Second},
			TradeLookback: duration{60 * time.Second},
		},
		Session: SessionConfig{
			Asset:          "BTC",
			Interval:       15,
			PollInterval:   duration{5 * time.Second},
			ExpiryGuard:    duration{60 * time.Second},
			ResyncInterval: duration{60 * time.Second},
		},
		Claims: ClaimsConfig{
			CheckInterval: duration{120 * time.Second},
			ClaimDelay:    duration{15 * time.Second},
			MaxAttempts:   10,
			BatchClaims:   true,
		},
		Journal: JournalConfig{
			DSN:           "",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Notify: NotifyConfig{
			Events: []string{"rotation", "order_rejected", "resync", "claim", "error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"claim":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStrategies enumerates the registered strategy names.
var validStrategies = map[string]bool{
	"price_action": true,
	"market_maker": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, claim, monitor)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — trading and claiming both sign transactions.
	needsWallet := c.Mode == "trade" || c.Mode == "claim"
	if needsWallet && c.Wallet.PrivateKey == "" {
		errs = append(errs, "wallet: private_key must be set for mode "+c.Mode)
	}

	// Turbine endpoints
	if c.Turbine.ApiHost == "" {
		errs = append(errs, "turbine: api_host must not be empty")
	}
	if c.Turbine.WsHost == "" {
		errs = append(errs, "turbine: ws_host must not be empty")
	}
	if c.Turbine.ChainID <= 0 {
		errs = append(errs, "turbine: chain_id must be positive")
	}
	if needsWallet && c.Turbine.UsdcAddress == "" {
		errs = append(errs, "turbine: usdc_address must not be empty for mode "+c.Mode)
	}

	// Oracle
	if c.Oracle.HermesHost == "" {
		errs = append(errs, "oracle: hermes_host must not be empty")
	}
	if c.Oracle.FeedID == "" {
		errs = append(errs, "oracle: feed_id must not be empty")
	}
	if c.Oracle.Timeout.Duration <= 0 {
		errs = append(errs, "oracle: timeout must be positive")
	}

	// Strategy
	if !validStrategies[c.Strategy.Name] {
		errs = append(errs, fmt.Sprintf("strategy: unknown name %q (valid: price_action, market_maker)", c.Strategy.Name))
	}
	pa := c.Strategy.PriceAction
	if pa.ThresholdBps < 0 {
		errs = append(errs, "strategy.price_action: threshold_bps must be >= 0")
	}
	if pa.MinConfidence < 0 || pa.MaxConfidence > 1 || pa.MinConfidence > pa.MaxConfidence {
		errs = append(errs, "strategy.price_action: confidence bounds must satisfy 0 <= min <= max <= 1")
	}
	mm := c.Strategy.MarketMaker
	if mm.Levels < 1 {
		errs = append(errs, "strategy.market_maker: levels must be >= 1")
	}
	if mm.Lambda <= 0 {
		errs = append(errs, "strategy.market_maker: lambda must be > 0")
	}
	if mm.MinSpread <= 0 || mm.BaseSpread < mm.MinSpread {
		errs = append(errs, "strategy.market_maker: spreads must satisfy 0 < min_spread <= base_spread")
	}
	if mm.MaxProbability <= 0.5 || mm.MaxProbability >= 1 {
		errs = append(errs, "strategy.market_maker: max_probability must be in (0.5, 1)")
	}

	// Quoter
	if c.Quoter.OrderSize <= 0 {
		errs = append(errs, "quoter: order_size must be > 0")
	}
	if c.Quoter.MaxPosition <= 0 {
		errs = append(errs, "quoter: max_position must be > 0")
	}
	if c.Quoter.Allocation <= 0 {
		errs = append(errs, "quoter: allocation must be > 0")
	}
	if c.Quoter.RebalanceThreshold <= 0 {
		errs = append(errs, "quoter: rebalance_threshold must be > 0")
	}
	if c.Quoter.OrderTTL.Duration <= 0 {
		errs = append(errs, "quoter: order_ttl must be positive")
	}

	// Ledger
	if c.Ledger.VerifyDelay.Duration <= 0 {
		errs = append(errs, "ledger: verify_delay must be positive")
	}
	if c.Ledger.TradeLookback.Duration <= 0 {
		errs = append(errs, "ledger: trade_lookback must be positive")
	}

	// Session
	if c.Session.Asset == "" {
		errs = append(errs, "session: asset must not be empty")
	}
	if c.Session.Interval <= 0 {
		errs = append(errs, "session: interval_minutes must be positive")
	}
	if c.Session.PollInterval.Duration <= 0 {
		errs = append(errs, "session: poll_interval must be positive")
	}
	if c.Session.ExpiryGuard.Duration < 0 {
		errs = append(errs, "session: expiry_guard must not be negative")
	}

	// Claims
	if c.Claims.CheckInterval.Duration <= 0 {
		errs = append(errs, "claims: check_interval must be positive")
	}
	if c.Claims.ClaimDelay.Duration < 0 {
		errs = append(errs, "claims: claim_delay must not be negative")
	}
	if c.Claims.MaxAttempts < 1 {
		errs = append(errs, "claims: max_attempts must be >= 1")
	}

	// Journal
	if strings.TrimSpace(c.Journal.DSN) != "" {
		if c.Journal.PoolMaxConns < 1 {
			errs = append(errs, "journal: pool_max_conns must be >= 1")
		}
		if c.Journal.PoolMinConns < 0 || c.Journal.PoolMinConns > c.Journal.PoolMaxConns {
			errs = append(errs, "journal: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
