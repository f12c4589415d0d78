package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	rediscache "github.com/quantfold/turbinebot/internal/cache/redis"
	"github.com/quantfold/turbinebot/internal/claims"
	"github.com/quantfold/turbinebot/internal/config"
	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
	"github.com/quantfold/turbinebot/internal/feed"
	journaldb "github.com/quantfold/turbinebot/internal/journal/postgres"
	"github.com/quantfold/turbinebot/internal/ledger"
	"github.com/quantfold/turbinebot/internal/notify"
	"github.com/quantfold/turbinebot/internal/platform/turbine"
	"github.com/quantfold/turbinebot/internal/position"
	"github.com/quantfold/turbinebot/internal/quoter"
	"github.com/quantfold/turbinebot/internal/session"
	"github.com/quantfold/turbinebot/internal/strategy"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Trading-only fields are nil in monitor mode; the Redis and journal
// fields are nil when not configured.
type Dependencies struct {
	Signer  *crypto.Signer
	API     *turbine.Client
	Relayer *turbine.RelayerClient
	WS      *turbine.WSClient
	Oracle  *feed.PythClient

	Ledger     *ledger.Ledger
	Verifier   *ledger.Verifier
	Positions  *position.Tracker
	Session    *session.Manager
	Strategy   strategy.Strategy
	Controller *quoter.Controller
	Claims     *claims.Scheduler

	Notifier    *notify.Notifier
	Lock        *rediscache.LockManager
	OracleCache *rediscache.OracleCache

	OrderJournal *journaldb.OrderJournal
	FillJournal  *journaldb.FillJournal
	ClaimJournal *journaldb.ClaimJournal

	Trader string
}

// needsWallet returns true for modes that sign transactions.
func needsWallet(mode string) bool {
	return mode == "trade" || mode == "claim"
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Signer and venue clients ---
	var signer *crypto.Signer
	if needsWallet(cfg.Mode) {
		var err error
		signer, err = crypto.NewSigner(cfg.Wallet.PrivateKey, cfg.Turbine.ChainID)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Trader = signer.Address().Hex()
	} else {
		deps.Trader = cfg.Wallet.Address
	}
	deps.Signer = signer

	deps.API = turbine.NewClient(cfg.Turbine.ApiHost, signer, cfg.Turbine.ApiKey)
	deps.Relayer = turbine.NewRelayerClient(deps.API, cfg.Turbine.ChainID)
	deps.WS = turbine.NewWSClient(cfg.Turbine.WsHost)
	deps.Oracle = feed.NewPythClient(cfg.Oracle.HermesHost, cfg.Oracle.FeedID, cfg.Oracle.Timeout.Duration)

	// --- Redis (optional) ---
	var cooldown claims.Cooldown = claims.NewMemoryCooldown()
	if cfg.Redis.Addr != "" {
		redisClient, err := rediscache.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		cooldown = rediscache.NewCooldown(redisClient)
		deps.Lock = rediscache.NewLockManager(redisClient)
		deps.OracleCache = rediscache.NewOracleCache(redisClient)
	}

	// --- Journal (optional) ---
	if cfg.Journal.DSN != "" {
		pgClient, err := journaldb.New(ctx, cfg.Journal)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Journal.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OrderJournal = journaldb.NewOrderJournal(pool)
		deps.FillJournal = journaldb.NewFillJournal(pool)
		deps.ClaimJournal = journaldb.NewClaimJournal(pool)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Trading core ---
	if needsWallet(cfg.Mode) {
		builder := turbine.NewOrderBuilder(signer)
		deps.Ledger = ledger.New(deps.API, builder, deps.Trader, logger)
		deps.Verifier = ledger.NewVerifier(deps.Ledger, deps.API,
			cfg.Ledger.VerifyDelay.Duration, cfg.Ledger.TradeLookback.Duration, logger)
		deps.Positions = position.NewTracker(deps.API, deps.Trader, logger)

		approver := turbine.NewApprover(deps.API, deps.Relayer, signer, cfg.Turbine.UsdcAddress, cfg.Turbine.ChainID, logger)
		deps.Session = session.NewManager(deps.API, approver, cfg.Session.Asset,
			cfg.Session.PollInterval.Duration, cfg.Session.ExpiryGuard.Duration, logger)

		registry := strategy.NewRegistry()
		registry.Register(strategy.NewPriceAction(cfg.Strategy.PriceAction))
		registry.Register(strategy.NewMarketMaker(cfg.Strategy.MarketMaker))
		strat, err := registry.Get(cfg.Strategy.Name)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.Strategy = strat

		deps.Controller = quoter.NewController(deps.Ledger, deps.Verifier, deps.Positions,
			deps.Session, cfg.Quoter, cfg.Strategy.MarketMaker.Lambda, deps.Trader, strat.Name(), logger)

		deps.Claims = claims.NewScheduler(deps.API, deps.Relayer, signer, cooldown,
			claimEvents{journal: deps.ClaimJournal, notifier: deps.Notifier},
			deps.Trader, cfg.Turbine.ChainID, cfg.Claims, logger)
	}

	return deps, cleanup, nil
}

// claimEvents fans settled claims out to the journal and the notifier.
type claimEvents struct {
	journal  *journaldb.ClaimJournal
	notifier *notify.Notifier
}

func (e claimEvents) ClaimSettled(result domain.ClaimResult) {
	if e.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.journal.Record(ctx, result); err != nil {
			slog.Warn("claim journal write failed", slog.String("error", err.Error()))
		}
	}
	e.notifier.ClaimSettled(result)
}
