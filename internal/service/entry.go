package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"survivor-pool-bot/internal/config"
	"survivor-pool-bot/internal/model"
	"survivor-pool-bot/internal/pkg/db"
	"survivor-pool-bot/internal/repository"
	"survivor-pool-bot/internal/survivor"
)

// Entry-related errors.
var (
	ErrGameNotActive       = errors.New("game is not active")
	ErrAlreadyJoined       = errors.New("already joined this game")
	ErrStakeTooSmall       = errors.New("stake below the minimum")
	ErrTooManyTickets      = errors.New("ticket count out of range")
	ErrEntryNotActive      = errors.New("entry is not active")
	ErrTicketNotActive     = errors.New("ticket is already out")
	ErrRoundClosed         = errors.New("round is closed for picks")
	ErrUnknownTeam         = errors.New("unknown team")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// EntryStatus pairs an entry with its game and tickets for display.
type EntryStatus struct {
	Entry   model.Entry
	Game    model.Game
	Tickets []*model.Ticket
}

// EntryService handles joining games, pick submission and cash-out.
type EntryService struct {
	pool        *db.Pool
	game        config.GameConfig
	userRepo    *repository.UserRepository
	gameRepo    *repository.GameRepository
	entryRepo   *repository.EntryRepository
	teamRepo    *repository.TeamRepository
	fixtureRepo *repository.FixtureRepository
	txRepo      *repository.TransactionRepository
}

// NewEntryService creates a new EntryService instance.
func NewEntryService(
	pool *db.Pool,
	game config.GameConfig,
	userRepo *repository.UserRepository,
	gameRepo *repository.GameRepository,
	entryRepo *repository.EntryRepository,
	teamRepo *repository.TeamRepository,
	fixtureRepo *repository.FixtureRepository,
	txRepo *repository.TransactionRepository,
) *EntryService {
	return &EntryService{
		pool:        pool,
		game:        game,
		userRepo:    userRepo,
		gameRepo:    gameRepo,
		entryRepo:   entryRepo,
		teamRepo:    teamRepo,
		fixtureRepo: fixtureRepo,
		txRepo:      txRepo,
	}
}

// Join enters a user into a game with the given number of tickets, each
// staked at stake. The debit, the entry and its tickets are committed in
// one database transaction: either the user pays and holds all tickets, or
// nothing happened.
func (s *EntryService) Join(ctx context.Context, userID, gameID int64, stake decimal.Decimal, ticketCount int) (*model.Entry, error) {
	if stake.LessThan(s.game.MinStakeAmount()) {
		return nil, ErrStakeTooSmall
	}
	if ticketCount < 1 || ticketCount > s.game.MaxTickets {
		return nil, ErrTooManyTickets
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin join: %w", err)
	}
	defer tx.Rollback(ctx)

	game, err := s.gameRepo.WithTx(tx).GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusActive {
		return nil, ErrGameNotActive
	}

	entries := s.entryRepo.WithTx(tx)
	if _, err := entries.GetByUserAndGame(ctx, userID, gameID); err == nil {
		return nil, ErrAlreadyJoined
	} else if !errors.Is(err, repository.ErrEntryNotFound) {
		return nil, err
	}

	total := stake.Mul(decimal.NewFromInt(int64(ticketCount)))
	if _, err := s.userRepo.WithTx(tx).Debit(ctx, userID, total); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	entry, err := entries.Create(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	for i := 1; i <= ticketCount; i++ {
		if _, err := entries.CreateTicket(ctx, entry.ID, i, stake); err != nil {
			return nil, err
		}
	}

	desc := fmt.Sprintf("game %d: %d tickets at %s", gameID, ticketCount, stake.String())
	if _, err := s.txRepo.WithTx(tx).Create(ctx, userID, total.Neg(), model.TxTypeJoinStake, &desc); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit join: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Int64("game_id", gameID).
		Int("tickets", ticketCount).
		Str("stake", stake.String()).
		Msg("User joined game")

	return entry, nil
}

// SubmitPick records a ticket's two teams for the game's current round,
// replacing any earlier submission for that round. Both teams must play in
// the round and neither may have been used by the ticket before. The
// validation and the upsert run in one transaction holding the game row
// lock, so a settlement racing this call cannot advance the round between
// the current-round read and the pick landing.
func (s *EntryService) SubmitPick(ctx context.Context, userID, gameID int64, ticketIndex int, teamAName, teamBName string) (*model.Pick, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin pick submission: %w", err)
	}
	defer tx.Rollback(ctx)

	entries := s.entryRepo.WithTx(tx)
	entry, err := entries.GetByUserAndGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	if entry.Status != model.EntryStatusActive {
		return nil, ErrEntryNotActive
	}

	game, err := s.gameRepo.WithTx(tx).GetByIDForUpdate(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusActive {
		return nil, ErrGameNotActive
	}

	fixtures := s.fixtureRepo.WithTx(tx)
	kickoff, err := fixtures.EarliestKickoff(ctx, gameID, game.CurrentRound)
	if err != nil {
		return nil, err
	}
	if kickoff != nil && time.Now().After(*kickoff) {
		return nil, ErrRoundClosed
	}

	ticket, err := entries.GetTicket(ctx, entry.ID, ticketIndex)
	if err != nil {
		return nil, err
	}
	if ticket.Status != model.TicketStatusActive {
		return nil, ErrTicketNotActive
	}

	teams := s.teamRepo.WithTx(tx)
	teamA, err := teams.GetByName(ctx, teamAName)
	if err != nil {
		if errors.Is(err, repository.ErrTeamNotFound) {
			return nil, ErrUnknownTeam
		}
		return nil, err
	}
	teamB, err := teams.GetByName(ctx, teamBName)
	if err != nil {
		if errors.Is(err, repository.ErrTeamNotFound) {
			return nil, ErrUnknownTeam
		}
		return nil, err
	}

	roundTeams, err := teams.ListByRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		return nil, err
	}
	inRound := make(map[int64]bool, len(roundTeams))
	for _, t := range roundTeams {
		inRound[t.ID] = true
	}

	// A resubmission frees the teams of the pick it replaces.
	history, err := entries.ListPicksByTicket(ctx, entry.ID, ticketIndex)
	if err != nil {
		return nil, err
	}
	used := make(map[int64]bool, len(history)*2)
	for _, p := range history {
		if p.RoundNumber == game.CurrentRound {
			continue
		}
		used[p.TeamAID] = true
		used[p.TeamBID] = true
	}

	if err := survivor.ValidatePick(teamA.ID, teamB.ID, used, inRound); err != nil {
		return nil, err
	}

	pick, err := entries.UpsertPick(ctx, entry.ID, ticketIndex, game.CurrentRound, teamA.ID, teamB.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit pick submission: %w", err)
	}
	return pick, nil
}

// CashOut closes a user's entry and credits the sum of its still-active
// ticket stakes. The status transition is a guarded update, so a second
// cash-out of the same entry fails instead of paying twice.
func (s *EntryService) CashOut(ctx context.Context, userID, gameID int64) (decimal.Decimal, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin cash-out: %w", err)
	}
	defer tx.Rollback(ctx)

	entries := s.entryRepo.WithTx(tx)
	entry, err := entries.GetByUserAndGame(ctx, userID, gameID)
	if err != nil {
		return decimal.Zero, err
	}
	entry, err = entries.GetByIDForUpdate(ctx, entry.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if entry.Status != model.EntryStatusActive {
		return decimal.Zero, ErrEntryNotActive
	}

	tickets, err := entries.ListTickets(ctx, entry.ID)
	if err != nil {
		return decimal.Zero, err
	}
	amount := survivor.ActiveStakeSum(tickets)
	if len(tickets) == 0 && entry.LegacyStake != nil {
		// Entry predates tickets and was never backfilled.
		amount = *entry.LegacyStake
	}

	ok, err := entries.TransitionStatus(ctx, entry.ID, model.EntryStatusActive, model.EntryStatusCashedOut)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, ErrEntryNotActive
	}

	if _, err := s.userRepo.WithTx(tx).Credit(ctx, userID, amount); err != nil {
		return decimal.Zero, err
	}
	desc := fmt.Sprintf("game %d cash-out", gameID)
	if _, err := s.txRepo.WithTx(tx).Create(ctx, userID, amount, model.TxTypeCashOut, &desc); err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit cash-out: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Int64("game_id", gameID).
		Str("amount", amount.String()).
		Msg("Entry cashed out")

	return amount, nil
}

// ListByUser retrieves a user's entries with their games and tickets,
// newest first.
func (s *EntryService) ListByUser(ctx context.Context, userID int64) ([]*EntryStatus, error) {
	entries, err := s.entryRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	statuses := make([]*EntryStatus, 0, len(entries))
	for _, e := range entries {
		tickets, err := s.entryRepo.ListTickets(ctx, e.Entry.ID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, &EntryStatus{Entry: e.Entry, Game: e.Game, Tickets: tickets})
	}
	return statuses, nil
}

// MigrateLegacyStakes backfills a single ticket for every entry that still
// carries a legacy single stake, then clears the legacy field. Runs once at
// startup and is a no-op when nothing is left to migrate.
func (s *EntryService) MigrateLegacyStakes(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin legacy migration: %w", err)
	}
	defer tx.Rollback(ctx)

	entries := s.entryRepo.WithTx(tx)
	legacy, err := entries.ListLegacyEntries(ctx)
	if err != nil {
		return 0, err
	}

	for _, e := range legacy {
		if _, err := entries.CreateTicket(ctx, e.ID, 1, *e.LegacyStake); err != nil {
			return 0, err
		}
		if err := entries.ClearLegacyStake(ctx, e.ID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit legacy migration: %w", err)
	}

	if len(legacy) > 0 {
		log.Info().Int("entries", len(legacy)).Msg("Legacy stakes migrated to tickets")
	}
	return len(legacy), nil
}
