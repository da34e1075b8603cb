// Integration tests for the service layer, run against a real PostgreSQL
// via testcontainers-go. Skipped when Docker is unavailable.
package service

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"survivor-pool-bot/internal/config"
	"survivor-pool-bot/internal/model"
	"survivor-pool-bot/internal/pkg/db"
	"survivor-pool-bot/internal/pkg/lock"
	"survivor-pool-bot/internal/repository"
	"survivor-pool-bot/internal/result"
)

func checkDockerAvailable() bool {
	return exec.Command("docker", "info").Run() == nil
}

// env bundles everything a service test needs.
type env struct {
	pool       *db.Pool
	users      *repository.UserRepository
	txs        *repository.TransactionRepository
	games      *repository.GameRepository
	teams      *repository.TeamRepository
	fixtures   *repository.FixtureRepository
	entries    *repository.EntryRepository
	balance    *BalanceService
	entry      *EntryService
	catalog    *CatalogService
	settlement *SettlementService
}

func gameRules() config.GameConfig {
	return config.GameConfig{
		SurvivalMultiplier: 1.5,
		MinStake:           0.1,
		MaxTickets:         5,
		DefaultRounds:      10,
		MinWithdraw:        0.1,
	}
}

func setupEnv(t *testing.T) (*env, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rawPool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	require.NoError(t, applySchema(ctx, rawPool))

	pool := &db.Pool{Pool: rawPool}
	rules := gameRules()

	e := &env{
		pool:     pool,
		users:    repository.NewUserRepository(rawPool),
		txs:      repository.NewTransactionRepository(rawPool),
		games:    repository.NewGameRepository(rawPool),
		teams:    repository.NewTeamRepository(rawPool),
		fixtures: repository.NewFixtureRepository(rawPool),
		entries:  repository.NewEntryRepository(rawPool),
	}
	e.balance = NewBalanceService(pool, rules, e.users, e.txs)
	e.entry = NewEntryService(pool, rules, e.users, e.games, e.entries, e.teams, e.fixtures, e.txs)
	e.catalog = NewCatalogService(pool, rules, e.games, e.teams, e.fixtures, e.entries)
	e.settlement = NewSettlementService(
		pool, lock.NewKeyedLock(), result.NewSimulator(1), rules.Multiplier(),
		e.games, e.entries, e.fixtures,
	)

	cleanup := func() {
		rawPool.Close()
		_ = pgContainer.Terminate(ctx)
	}
	return e, cleanup
}

func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL,
			balance NUMERIC(18,6) NOT NULL DEFAULT 0,
			wallet_address VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount NUMERIC(18,6) NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE deposits (
			idempotency_key VARCHAR(128) PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			amount NUMERIC(18,6) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE teams (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE
		);
		CREATE TABLE games (
			id BIGSERIAL PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			rounds_total INT NOT NULL,
			current_round INT NOT NULL DEFAULT 1,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			start_round INT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE fixtures (
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
		CREATE TABLE entries (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			game_id BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			legacy_stake NUMERIC(18,6),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, game_id)
		);
		CREATE TABLE tickets (
			id BIGSERIAL PRIMARY KEY,
			entry_id BIGINT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
			ticket_index INT NOT NULL,
			stake_amount NUMERIC(18,6) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			UNIQUE (entry_id, ticket_index)
		);
		CREATE TABLE picks (
			id BIGSERIAL PRIMARY KEY,
			entry_id BIGINT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
			ticket_index INT NOT NULL,
			round_number INT NOT NULL,
			team_a_id BIGINT NOT NULL REFERENCES teams(id),
			team_b_id BIGINT NOT NULL REFERENCES teams(id),
			UNIQUE (entry_id, ticket_index, round_number)
		);
	`)
	return err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seedPlayer creates a user with the given balance.
func seedPlayer(t *testing.T, e *env, id int64, balance string) {
	ctx := context.Background()
	_, err := e.users.Create(ctx, id, "player")
	require.NoError(t, err)
	_, err = e.users.Credit(ctx, id, dec(balance))
	require.NoError(t, err)
}

// seedGame creates a game with round-1 fixtures A-B and C-D.
func seedGame(t *testing.T, e *env, rounds int) *model.Game {
	ctx := context.Background()
	_, err := e.catalog.AddTeams(ctx, []string{"A", "B", "C", "D"})
	require.NoError(t, err)
	game, err := e.catalog.CreateGame(ctx, "Test League", rounds, nil)
	require.NoError(t, err)
	_, err = e.catalog.CreateFixtures(ctx, game.ID, 1, []FixturePair{
		{Home: "A", Away: "B"},
		{Home: "C", Away: "D"},
	})
	require.NoError(t, err)
	return game
}

func TestJoin(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)

	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 3)
	require.NoError(t, err)

	// Stake times ticket count leaves the balance.
	user, err := e.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(dec("70")))

	_, err = e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	assert.ErrorIs(t, err, ErrAlreadyJoined)

	_, err = e.entry.Join(ctx, 2, game.ID, dec("10"), 1)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestJoinRejectsWithoutTouchingBalance(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "0.25")
	game := seedGame(t, e, 3)

	// Three tickets at 0.1 each cost 0.3, more than the 0.25 balance.
	_, err := e.entry.Join(ctx, 1, game.ID, dec("0.1"), 3)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = e.entry.Join(ctx, 1, game.ID, dec("0.01"), 1)
	assert.ErrorIs(t, err, ErrStakeTooSmall)

	_, err = e.entry.Join(ctx, 1, game.ID, dec("0.1"), 6)
	assert.ErrorIs(t, err, ErrTooManyTickets)

	user, err := e.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(dec("0.25")))

	// No entry was left behind by the failed joins.
	_, err = e.entries.GetByUserAndGame(ctx, 1, game.ID)
	assert.ErrorIs(t, err, repository.ErrEntryNotFound)
}

func TestSubmitPickValidation(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	require.NoError(t, err)

	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "A")
	assert.Error(t, err)

	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "Narnia")
	assert.ErrorIs(t, err, ErrUnknownTeam)

	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 2, "A", "C")
	assert.ErrorIs(t, err, repository.ErrTicketNotFound)

	// Valid pick, then a replacement for the same round.
	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "C")
	require.NoError(t, err)
	pick, err := e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "D")
	require.NoError(t, err)
	assert.Equal(t, 1, pick.RoundNumber)
}

func TestSubmitPickKickoffDeadline(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")

	_, err := e.catalog.AddTeams(ctx, []string{"A", "B", "C", "D"})
	require.NoError(t, err)

	// Round 1 of the first game already kicked off.
	closed, err := e.catalog.CreateGame(ctx, "Closed League", 3, nil)
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	_, err = e.catalog.CreateFixtures(ctx, closed.ID, 1, []FixturePair{
		{Home: "A", Away: "B", KickoffAt: &past},
		{Home: "C", Away: "D"},
	})
	require.NoError(t, err)
	_, err = e.entry.Join(ctx, 1, closed.ID, dec("10"), 1)
	require.NoError(t, err)

	_, err = e.entry.SubmitPick(ctx, 1, closed.ID, 1, "A", "C")
	assert.ErrorIs(t, err, ErrRoundClosed)

	// The second game's round kicks off tomorrow, picks are still open.
	open, err := e.catalog.CreateGame(ctx, "Open League", 3, nil)
	require.NoError(t, err)
	future := time.Now().Add(24 * time.Hour)
	_, err = e.catalog.CreateFixtures(ctx, open.ID, 1, []FixturePair{
		{Home: "A", Away: "B", KickoffAt: &future},
		{Home: "C", Away: "D", KickoffAt: &future},
	})
	require.NoError(t, err)
	_, err = e.entry.Join(ctx, 1, open.ID, dec("10"), 1)
	require.NoError(t, err)

	_, err = e.entry.SubmitPick(ctx, 1, open.ID, 1, "A", "C")
	require.NoError(t, err)
}

// A pick submission racing a settlement must never land on a round that
// was already settled: either the pick commits first and the settlement
// evaluates it, or the settlement commits first and the pick lands on the
// next round.
func TestSubmitPickSettlementRace(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	require.NoError(t, err)

	// A and C score in round 1, so the pick passes if it gets counted.
	fixtures, err := e.fixtures.ListByRound(ctx, game.ID, 1)
	require.NoError(t, err)
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[0].ID, 2, 1))
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[1].ID, 1, 0))

	// Same pairings in round 2, so the pick is valid on either round.
	_, err = e.catalog.CreateFixtures(ctx, game.ID, 2, []FixturePair{
		{Home: "A", Away: "B"},
		{Home: "C", Away: "D"},
	})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		summary *SettlementSummary
	)
	wg.Add(2)
	var settleErr, pickErr error
	go func() {
		defer wg.Done()
		summary, settleErr = e.settlement.SettleRound(ctx, game.ID, 1)
	}()
	go func() {
		defer wg.Done()
		_, pickErr = e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "C")
	}()
	wg.Wait()
	require.NoError(t, settleErr)
	require.NoError(t, pickErr)

	entry, err := e.entries.GetByUserAndGame(ctx, 1, game.ID)
	require.NoError(t, err)
	picks, err := e.entries.ListPicksByTicket(ctx, entry.ID, 1)
	require.NoError(t, err)
	require.Len(t, picks, 1)

	switch picks[0].RoundNumber {
	case 1:
		// The pick won the race and the settlement saw it.
		assert.Equal(t, 1, summary.TicketsPassed)
	case 2:
		// The settlement won and the pick moved to the new round.
		assert.Equal(t, 1, summary.TicketsNoPick)
	default:
		t.Fatalf("pick landed on round %d", picks[0].RoundNumber)
	}
}

func TestSettleRound(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 2)
	require.NoError(t, err)

	// Ticket 1 backs two scorers, ticket 2 backs a goalless pair.
	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "C")
	require.NoError(t, err)
	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 2, "B", "D")
	require.NoError(t, err)

	// A-B 2-1, C-D 1-0: A, B and C scored, D did not.
	fixtures, err := e.fixtures.ListByRound(ctx, game.ID, 1)
	require.NoError(t, err)
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[0].ID, 2, 1))
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[1].ID, 1, 0))

	summary, err := e.settlement.SettleRound(ctx, game.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TicketsPassed)
	assert.Equal(t, 1, summary.TicketsFailed)
	assert.Equal(t, 0, summary.EntriesOut)
	assert.False(t, summary.GameFinished)

	entry, err := e.entries.GetByUserAndGame(ctx, 1, game.ID)
	require.NoError(t, err)
	tickets, err := e.entries.ListTickets(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, tickets[0].StakeAmount.Equal(dec("15")))
	assert.Equal(t, model.TicketStatusActive, tickets[0].Status)
	assert.True(t, tickets[1].StakeAmount.Equal(dec("10")))
	assert.Equal(t, model.TicketStatusOut, tickets[1].Status)

	got, err := e.games.GetByID(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentRound)

	// Settling the same round again changes nothing.
	_, err = e.settlement.SettleRound(ctx, game.ID, 1)
	assert.ErrorIs(t, err, ErrRoundAlreadySettled)

	after, err := e.entries.ListTickets(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, after[0].StakeAmount.Equal(dec("15")))
}

func TestSettleRound_NoPickCarriesForward(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	require.NoError(t, err)

	fixtures, err := e.fixtures.ListByRound(ctx, game.ID, 1)
	require.NoError(t, err)
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[0].ID, 2, 0))
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[1].ID, 0, 0))

	summary, err := e.settlement.SettleRound(ctx, game.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TicketsNoPick)

	entry, err := e.entries.GetByUserAndGame(ctx, 1, game.ID)
	require.NoError(t, err)
	tickets, err := e.entries.ListTickets(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, tickets[0].StakeAmount.Equal(dec("10")))
	assert.Equal(t, model.TicketStatusActive, tickets[0].Status)
	assert.Equal(t, model.EntryStatusActive, entry.Status)
}

func TestSettleRound_LastTicketOutTakesEntryOut(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	require.NoError(t, err)
	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "B", "D")
	require.NoError(t, err)

	fixtures, err := e.fixtures.ListByRound(ctx, game.ID, 1)
	require.NoError(t, err)
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[0].ID, 1, 0))
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[1].ID, 0, 0))

	summary, err := e.settlement.SettleRound(ctx, game.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EntriesOut)

	entry, err := e.entries.GetByUserAndGame(ctx, 1, game.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EntryStatusOut, entry.Status)

	// An entry that is out has nothing left to cash out.
	_, err = e.entry.CashOut(ctx, 1, game.ID)
	assert.ErrorIs(t, err, ErrEntryNotActive)
}

func TestSettleRound_SimulatorFillsMissingScores(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	require.NoError(t, err)

	// No scores recorded: the settlement draws them from its source.
	summary, err := e.settlement.SettleRound(ctx, game.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Round)

	fixtures, err := e.fixtures.ListByRound(ctx, game.ID, 1)
	require.NoError(t, err)
	for _, f := range fixtures {
		assert.True(t, f.Scored())
	}
}

func TestSettleRound_FinishesGame(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 1)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	require.NoError(t, err)

	summary, err := e.settlement.SettleRound(ctx, game.ID, 1)
	require.NoError(t, err)
	assert.True(t, summary.GameFinished)

	got, err := e.games.GetByID(ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GameStatusFinished, got.Status)

	_, err = e.settlement.SettleCurrentRound(ctx, game.ID)
	assert.ErrorIs(t, err, ErrGameNotActive)
}

func TestCashOutOneShot(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 2)
	require.NoError(t, err)

	amount, err := e.entry.CashOut(ctx, 1, game.ID)
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("20")))

	user, err := e.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(dec("100")))

	// The second cash-out must not pay again.
	_, err = e.entry.CashOut(ctx, 1, game.ID)
	assert.ErrorIs(t, err, ErrEntryNotActive)

	user, err = e.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(dec("100")))
}

func TestApplyDepositIdempotent(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "0")

	applied, err := e.balance.ApplyDeposit(ctx, 1, dec("25"), "tx-abc")
	require.NoError(t, err)
	assert.True(t, applied)

	// Redelivery of the same payment event credits nothing.
	applied, err = e.balance.ApplyDeposit(ctx, 1, dec("25"), "tx-abc")
	require.NoError(t, err)
	assert.False(t, applied)

	user, err := e.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(dec("25")))
}

func TestWithdraw(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "50")

	_, err := e.balance.Withdraw(ctx, 1, dec("10"))
	assert.ErrorIs(t, err, ErrWalletNotSet)

	assert.ErrorIs(t, e.balance.SetWallet(ctx, 1, "not-a-wallet"), ErrInvalidWallet)
	require.NoError(t, e.balance.SetWallet(ctx, 1, "UQAbcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJ"))

	_, err = e.balance.Withdraw(ctx, 1, dec("0.05"))
	assert.ErrorIs(t, err, ErrWithdrawTooSmall)

	_, err = e.balance.Withdraw(ctx, 1, dec("100"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	requestID, err := e.balance.Withdraw(ctx, 1, dec("10"))
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	user, err := e.users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.Balance.Equal(dec("40")))
}

func TestMigrateLegacyStakes(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)

	entry, err := e.entries.Create(ctx, 1, game.ID)
	require.NoError(t, err)
	_, err = e.pool.Exec(ctx, `UPDATE entries SET legacy_stake = 12.5 WHERE id = $1`, entry.ID)
	require.NoError(t, err)

	migrated, err := e.entry.MigrateLegacyStakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, migrated)

	tickets, err := e.entries.ListTickets(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, 1, tickets[0].TicketIndex)
	assert.True(t, tickets[0].StakeAmount.Equal(dec("12.5")))

	got, err := e.entries.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LegacyStake)

	// Running the migration again finds nothing to do.
	migrated, err = e.entry.MigrateLegacyStakes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, migrated)
}

func TestSetFinalScoreRejectsSettledRound(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)

	fixtures, err := e.fixtures.ListByRound(ctx, game.ID, 1)
	require.NoError(t, err)

	_, err = e.settlement.SettleRound(ctx, game.ID, 1)
	require.NoError(t, err)

	err = e.catalog.SetFinalScore(ctx, fixtures[0].ID, 3, 3)
	assert.ErrorIs(t, err, ErrRoundSettled)
}

func TestAvailableTeamsShrinkAcrossRounds(t *testing.T) {
	e, cleanup := setupEnv(t)
	defer cleanup()
	ctx := context.Background()

	seedPlayer(t, e, 1, "100")
	game := seedGame(t, e, 3)
	_, err := e.entry.Join(ctx, 1, game.ID, dec("10"), 1)
	require.NoError(t, err)
	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "C")
	require.NoError(t, err)

	// A and C scored: ticket survives into round 2.
	fixtures, err := e.fixtures.ListByRound(ctx, game.ID, 1)
	require.NoError(t, err)
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[0].ID, 2, 1))
	require.NoError(t, e.fixtures.SetScore(ctx, fixtures[1].ID, 1, 0))
	_, err = e.settlement.SettleRound(ctx, game.ID, 1)
	require.NoError(t, err)

	_, err = e.catalog.CreateFixtures(ctx, game.ID, 2, []FixturePair{
		{Home: "A", Away: "B"},
		{Home: "C", Away: "D"},
	})
	require.NoError(t, err)

	available, err := e.catalog.AvailableTeams(ctx, 1, game.ID, 1)
	require.NoError(t, err)
	names := make([]string, 0, len(available))
	for _, team := range available {
		names = append(names, team.Name)
	}
	assert.ElementsMatch(t, []string{"B", "D"}, names)

	// Reusing a team from round 1 is rejected.
	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "A", "B")
	assert.Error(t, err)
	_, err = e.entry.SubmitPick(ctx, 1, game.ID, 1, "B", "D")
	require.NoError(t, err)
}
