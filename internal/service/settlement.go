package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"survivor-pool-bot/internal/model"
	"survivor-pool-bot/internal/pkg/db"
	"survivor-pool-bot/internal/pkg/lock"
	"survivor-pool-bot/internal/repository"
	"survivor-pool-bot/internal/result"
	"survivor-pool-bot/internal/survivor"
)

// Settlement-related errors.
var (
	ErrRoundAlreadySettled = errors.New("round already settled")
	ErrRoundNotCurrent     = errors.New("round is not the game's current round")
	ErrNoFixtures          = errors.New("round has no fixtures")
)

// SettlementSummary reports what one round settlement did.
type SettlementSummary struct {
	GameID        int64
	Round         int
	TicketsPassed int
	TicketsFailed int
	TicketsNoPick int
	EntriesOut    int
	GameFinished  bool
}

// SettlementService settles game rounds: it completes missing fixture
// scores from its result source, evaluates every active ticket, compounds
// or freezes stakes and advances the round counter. All of it happens in
// one database transaction holding the game row lock, so a round settles
// exactly once no matter how many triggers race.
type SettlementService struct {
	pool        *db.Pool
	locks       *lock.KeyedLock
	source      result.Source
	multiplier  decimal.Decimal
	gameRepo    *repository.GameRepository
	entryRepo   *repository.EntryRepository
	fixtureRepo *repository.FixtureRepository
}

// NewSettlementService creates a new SettlementService instance.
func NewSettlementService(
	pool *db.Pool,
	locks *lock.KeyedLock,
	source result.Source,
	multiplier decimal.Decimal,
	gameRepo *repository.GameRepository,
	entryRepo *repository.EntryRepository,
	fixtureRepo *repository.FixtureRepository,
) *SettlementService {
	return &SettlementService{
		pool:        pool,
		locks:       locks,
		source:      source,
		multiplier:  multiplier,
		gameRepo:    gameRepo,
		entryRepo:   entryRepo,
		fixtureRepo: fixtureRepo,
	}
}

// SettleCurrentRound settles whatever round the game is currently on.
func (s *SettlementService) SettleCurrentRound(ctx context.Context, gameID int64) (*SettlementSummary, error) {
	game, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return s.SettleRound(ctx, gameID, game.CurrentRound)
}

// SettleRound settles one round of a game. The round must be the game's
// current round: an earlier round reports ErrRoundAlreadySettled, a later
// one ErrRoundNotCurrent. Repeating a settlement is therefore a safe
// no-op apart from the error.
func (s *SettlementService) SettleRound(ctx context.Context, gameID int64, round int) (*SettlementSummary, error) {
	// Collapse duplicate in-process triggers before they hit the game
	// row lock.
	s.locks.Lock(gameID)
	defer s.locks.Unlock(gameID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	games := s.gameRepo.WithTx(tx)
	game, err := games.GetByIDForUpdate(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusActive {
		return nil, ErrGameNotActive
	}
	if round < game.CurrentRound {
		return nil, ErrRoundAlreadySettled
	}
	if round > game.CurrentRound {
		return nil, ErrRoundNotCurrent
	}

	fixtures := s.fixtureRepo.WithTx(tx)
	roundFixtures, err := fixtures.ListByRound(ctx, gameID, round)
	if err != nil {
		return nil, err
	}
	if len(roundFixtures) == 0 {
		return nil, ErrNoFixtures
	}

	if err := s.completeScores(ctx, fixtures, roundFixtures); err != nil {
		return nil, err
	}

	scored := survivor.ScoredTeams(roundFixtures)
	summary := &SettlementSummary{GameID: gameID, Round: round}

	entries := s.entryRepo.WithTx(tx)
	active, err := entries.ListActiveByGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	for _, entry := range active {
		if err := s.settleEntry(ctx, entries, entry, round, scored, summary); err != nil {
			return nil, err
		}
	}

	advanced, err := games.AdvanceRound(ctx, gameID, round)
	if err != nil {
		return nil, err
	}
	if !advanced {
		return nil, ErrRoundAlreadySettled
	}
	summary.GameFinished = round+1 > game.RoundsTotal

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}

	log.Info().
		Int64("game_id", gameID).
		Int("round", round).
		Int("passed", summary.TicketsPassed).
		Int("failed", summary.TicketsFailed).
		Int("no_pick", summary.TicketsNoPick).
		Int("entries_out", summary.EntriesOut).
		Bool("finished", summary.GameFinished).
		Msg("Round settled")

	return summary, nil
}

// completeScores fills in final scores for fixtures that have none yet.
// A feed source that cannot produce a score yet aborts the settlement; the
// random simulator always can.
func (s *SettlementService) completeScores(ctx context.Context, fixtures *repository.FixtureRepository, roundFixtures []*model.Fixture) error {
	for _, f := range roundFixtures {
		if f.Scored() {
			continue
		}
		home, away, err := s.source.Scores(ctx, f)
		if err != nil {
			return fmt.Errorf("fixture %d: %w", f.ID, err)
		}
		if err := fixtures.SetScore(ctx, f.ID, home, away); err != nil {
			return err
		}
		f.HomeGoals = &home
		f.AwayGoals = &away
	}
	return nil
}

// settleEntry evaluates one entry's tickets for the round and applies the
// results. An entry whose last active ticket fails goes out with it.
func (s *SettlementService) settleEntry(
	ctx context.Context,
	entries *repository.EntryRepository,
	entry *model.Entry,
	round int,
	scored map[int64]bool,
	summary *SettlementSummary,
) error {
	tickets, err := entries.ListTickets(ctx, entry.ID)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		// Legacy entry awaiting ticket backfill; leave it alone.
		return nil
	}

	picks, err := entries.ListPicksByEntryAndRound(ctx, entry.ID, round)
	if err != nil {
		return err
	}

	anyFailed := false
	for _, res := range survivor.EvaluateRound(tickets, picks, scored, s.multiplier) {
		switch res.Outcome {
		case survivor.OutcomePassed:
			if err := entries.UpdateTicketStake(ctx, res.TicketID, res.NewStake); err != nil {
				return err
			}
			summary.TicketsPassed++
		case survivor.OutcomeFailed:
			if err := entries.MarkTicketOut(ctx, res.TicketID); err != nil {
				return err
			}
			anyFailed = true
			summary.TicketsFailed++
		case survivor.OutcomeNoPick:
			summary.TicketsNoPick++
		}
	}

	if !anyFailed {
		return nil
	}

	remaining, err := entries.CountActiveTickets(ctx, entry.ID)
	if err != nil {
		return err
	}
	if remaining == 0 {
		if _, err := entries.TransitionStatus(ctx, entry.ID, model.EntryStatusActive, model.EntryStatusOut); err != nil {
			return err
		}
		summary.EntriesOut++
	}
	return nil
}
