package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TURBINEBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TURBINEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "TURBINEBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.Address, "TURBINEBOT_WALLET_ADDRESS")

	// ── Turbine ──
	setStr(&cfg.Turbine.ApiHost, "TURBINEBOT_TURBINE_API_HOST")
	setStr(&cfg.Turbine.WsHost, "TURBINEBOT_TURBINE_WS_HOST")
	setStr(&cfg.Turbine.ApiKey, "TURBINEBOT_TURBINE_API_KEY")
	setInt(&cfg.Turbine.ChainID, "TURBINEBOT_TURBINE_CHAIN_ID")
	setStr(&cfg.Turbine.UsdcAddress, "TURBINEBOT_TURBINE_USDC_ADDRESS")

	// ── Oracle ──
	setStr(&cfg.Oracle.HermesHost, "TURBINEBOT_ORACLE_HERMES_HOST")
	setStr(&cfg.Oracle.FeedID, "TURBINEBOT_ORACLE_FEED_ID")
	setDuration(&cfg.Oracle.Timeout, "TURBINEBOT_ORACLE_TIMEOUT")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "TURBINEBOT_STRATEGY_NAME")
	setInt(&cfg.Strategy.PriceAction.ThresholdBps, "TURBINEBOT_STRATEGY_PRICE_ACTION_THRESHOLD_BPS")
	setFloat64(&cfg.Strategy.PriceAction.MinConfidence, "TURBINEBOT_STRATEGY_PRICE_ACTION_MIN_CONFIDENCE")
	setFloat64(&cfg.Strategy.PriceAction.MaxConfidence, "TURBINEBOT_STRATEGY_PRICE_ACTION_MAX_CONFIDENCE")
	setFloat64(&cfg.Strategy.MarketMaker.Sensitivity, "TURBINEBOT_STRATEGY_MARKET_MAKER_SENSITIVITY")
	setFloat64(&cfg.Strategy.MarketMaker.BaseSpread, "TURBINEBOT_STRATEGY_MARKET_MAKER_BASE_SPREAD")
	setInt(&cfg.Strategy.MarketMaker.Levels, "TURBINEBOT_STRATEGY_MARKET_MAKER_LEVELS")
	setFloat64(&cfg.Strategy.MarketMaker.Lambda, "TURBINEBOT_STRATEGY_MARKET_MAKER_LAMBDA")

	// ── Quoter ──
	setFloat64(&cfg.Quoter.OrderSize, "TURBINEBOT_QUOTER_ORDER_SIZE")
	setFloat64(&cfg.Quoter.MaxPosition, "TURBINEBOT_QUOTER_MAX_POSITION")
	setFloat64(&cfg.Quoter.Allocation, "TURBINEBOT_QUOTER_ALLOCATION")
	setFloat64(&cfg.Quoter.RebalanceThreshold, "TURBINEBOT_QUOTER_REBALANCE_THRESHOLD")
	setDuration(&cfg.Quoter.RebalanceInterval, "TURBINEBOT_QUOTER_REBALANCE_INTERVAL")
	setDuration(&cfg.Quoter.OrderTTL, "TURBINEBOT_QUOTER_ORDER_TTL")

	// ── Ledger ──
	setDuration(&cfg.Ledger.VerifyDelay, "TURBINEBOT_LEDGER_VERIFY_DELAY")
	setDuration(&cfg.Ledger.TradeLookback, "TURBINEBOT_LEDGER_TRADE_LOOKBACK")

	// ── Session ──
	setStr(&cfg.Session.Asset, "TURBINEBOT_SESSION_ASSET")
	setInt(&cfg.Session.Interval, "TURBINEBOT_SESSION_INTERVAL_MINUTES")
	setDuration(&cfg.Session.PollInterval, "TURBINEBOT_SESSION_POLL_INTERVAL")
	setDuration(&cfg.Session.ExpiryGuard, "TURBINEBOT_SESSION_EXPIRY_GUARD")
	setDuration(&cfg.Session.ResyncInterval, "TURBINEBOT_SESSION_RESYNC_INTERVAL")

	// ── Claims ──
	setDuration(&cfg.Claims.CheckInterval, "TURBINEBOT_CLAIMS_CHECK_INTERVAL")
	setDuration(&cfg.Claims.ClaimDelay, "TURBINEBOT_CLAIMS_CLAIM_DELAY")
	setInt(&cfg.Claims.MaxAttempts, "TURBINEBOT_CLAIMS_MAX_ATTEMPTS")
	setBool(&cfg.Claims.BatchClaims, "TURBINEBOT_CLAIMS_BATCH_CLAIMS")

	// ── Journal ──
	setStr(&cfg.Journal.DSN, "TURBINEBOT_JOURNAL_DSN")
	setInt(&cfg.Journal.PoolMaxConns, "TURBINEBOT_JOURNAL_POOL_MAX_CONNS")
	setInt(&cfg.Journal.PoolMinConns, "TURBINEBOT_JOURNAL_POOL_MIN_CONNS")
	setBool(&cfg.Journal.RunMigrations, "TURBINEBOT_JOURNAL_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TURBINEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TURBINEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TURBINEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TURBINEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TURBINEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TURBINEBOT_REDIS_TLS_ENABLED")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TURBINEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TURBINEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TURBINEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TURBINEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TURBINEBOT_MODE")
	setStr(&cfg.LogLevel, "TURBINEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
