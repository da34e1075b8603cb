// Package main is the entry point for the survivor pool bot.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"survivor-pool-bot/internal/bot"
	"survivor-pool-bot/internal/config"
	"survivor-pool-bot/internal/pkg/db"
	"survivor-pool-bot/internal/pkg/lock"
	"survivor-pool-bot/internal/repository"
	"survivor-pool-bot/internal/result"
	"survivor-pool-bot/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	gameRepo := repository.NewGameRepository(dbPool.Pool)
	teamRepo := repository.NewTeamRepository(dbPool.Pool)
	fixtureRepo := repository.NewFixtureRepository(dbPool.Pool)
	entryRepo := repository.NewEntryRepository(dbPool.Pool)

	// Initialize locks
	userLock := lock.NewKeyedLock()
	gameLock := lock.NewKeyedLock()

	// Initialize services
	balanceService := service.NewBalanceService(dbPool, cfg.Game, userRepo, txRepo)
	entryService := service.NewEntryService(dbPool, cfg.Game, userRepo, gameRepo, entryRepo, teamRepo, fixtureRepo, txRepo)
	catalogService := service.NewCatalogService(dbPool, cfg.Game, gameRepo, teamRepo, fixtureRepo, entryRepo)

	// Settlement falls back to simulated scores for fixtures the live feed
	// has not covered.
	simulator := result.NewSimulator(time.Now().UnixNano())
	settlementService := service.NewSettlementService(
		dbPool, gameLock, simulator, cfg.Game.Multiplier(),
		gameRepo, entryRepo, fixtureRepo,
	)

	// Backfill tickets for entries created before multi-ticket support
	if migrated, err := entryService.MigrateLegacyStakes(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate legacy stakes")
	} else if migrated > 0 {
		log.Info().Int("entries", migrated).Msg("Legacy stake migration completed")
	}

	// Start the live result sync when a feed is configured
	var syncer *result.Syncer
	if cfg.Feed.BaseURL != "" {
		feed := result.NewFeedClient(cfg.Feed.BaseURL, cfg.Feed.APIToken)
		syncer = result.NewSyncer(gameRepo, fixtureRepo, feed, func(ctx context.Context, gameID int64, round int) error {
			_, err := settlementService.SettleRound(ctx, gameID, round)
			if errors.Is(err, service.ErrRoundAlreadySettled) {
				// Another trigger got there first
				return nil
			}
			return err
		}, cfg.Feed.SyncInterval)
		if err := syncer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start result sync")
		}
		defer syncer.Stop()
	}

	// Create bot dependencies
	deps := &bot.Dependencies{
		Config:            cfg,
		EntryService:      entryService,
		BalanceService:    balanceService,
		CatalogService:    catalogService,
		SettlementService: settlementService,
		UserLock:          userLock,
	}

	// Initialize bot
	telegramBot, err := bot.New(deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	log.Info().Msg("Bot stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance NUMERIC(18,6) NOT NULL DEFAULT 0,
			wallet_address VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_users_balance ON users(balance DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount NUMERIC(18,6) NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: transactions table created")

	// Migration 3: Create deposits table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS deposits (
			idempotency_key VARCHAR(128) PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount NUMERIC(18,6) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: deposits table created")

	// Migration 4: Create teams and games tables
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS teams (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS games (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			rounds_total INT NOT NULL,
			current_round INT NOT NULL DEFAULT 1,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			start_round INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: teams and games tables created")

	// Migration 5: Create fixtures table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fixtures (
			id BIGSERIAL PRIMARY KEY,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			round_number INT NOT NULL,
			home_team_id BIGINT NOT NULL REFERENCES teams(id),
			away_team_id BIGINT NOT NULL REFERENCES teams(id),
			home_goals INT,
			away_goals INT,
			kickoff_at TIMESTAMPTZ,
			external_ref VARCHAR(128),
			status VARCHAR(20) DEFAULT 'SCHEDULED'
		);
		CREATE INDEX IF NOT EXISTS idx_fixtures_game_round ON fixtures(game_id, round_number);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_fixtures_external_ref ON fixtures(external_ref) WHERE external_ref IS NOT NULL;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: fixtures table created")

	// Migration 6: Create entries, tickets and picks tables
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			legacy_stake NUMERIC(18,6),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, game_id)
		);
		CREATE TABLE IF NOT EXISTS tickets (
			id BIGSERIAL PRIMARY KEY,
			entry_id BIGINT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
			ticket_index INT NOT NULL,
			stake_amount NUMERIC(18,6) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			UNIQUE (entry_id, ticket_index)
		);
		CREATE TABLE IF NOT EXISTS picks (
			id BIGSERIAL PRIMARY KEY,
			entry_id BIGINT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
			ticket_index INT NOT NULL,
			round_number INT NOT NULL,
			team_a_id BIGINT NOT NULL REFERENCES teams(id),
			team_b_id BIGINT NOT NULL REFERENCES teams(id),
			UNIQUE (entry_id, ticket_index, round_number)
		);
		CREATE INDEX IF NOT EXISTS idx_entries_game_status ON entries(game_id, status);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 6: entries, tickets and picks tables created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
