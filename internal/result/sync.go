package result

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"survivor-pool-bot/internal/model"
	"survivor-pool-bot/internal/repository"
)

// SettleFunc settles a game round once its fixtures all carry final
// scores. Backed by the settlement service; declared as a function type so
// the sync job does not depend on the service package.
type SettleFunc func(ctx context.Context, gameID int64, round int) error

// Syncer periodically pulls live scores for the current round of every
// active game and triggers settlement when a round is fully scored.
type Syncer struct {
	games     *repository.GameRepository
	fixtures  *repository.FixtureRepository
	feed      Source
	settle    SettleFunc
	interval  time.Duration
	scheduler gocron.Scheduler
}

// NewSyncer creates a Syncer polling at the given interval.
func NewSyncer(
	games *repository.GameRepository,
	fixtures *repository.FixtureRepository,
	feed Source,
	settle SettleFunc,
	interval time.Duration,
) *Syncer {
	return &Syncer{
		games:    games,
		fixtures: fixtures,
		feed:     feed,
		settle:   settle,
		interval: interval,
	}
}

// Start begins the background sync job.
func (s *Syncer) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.scheduler = scheduler

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			defer cancel()
			s.syncOnce(ctx)
		}),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	log.Info().Dur("interval", s.interval).Msg("Live result sync started")
	return nil
}

// Stop shuts the sync job down.
func (s *Syncer) Stop() {
	if s.scheduler != nil {
		_ = s.scheduler.Shutdown()
		log.Info().Msg("Live result sync stopped")
	}
}

// syncOnce processes the current round of every active game.
func (s *Syncer) syncOnce(ctx context.Context) {
	games, err := s.games.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Result sync: failed to list active games")
		return
	}

	for _, game := range games {
		if err := s.syncGame(ctx, game); err != nil {
			log.Error().Err(err).Int64("game_id", game.ID).Msg("Result sync: game sync failed")
		}
	}
}

func (s *Syncer) syncGame(ctx context.Context, game *model.Game) error {
	fixtures, err := s.fixtures.ListByRound(ctx, game.ID, game.CurrentRound)
	if err != nil {
		return err
	}
	if len(fixtures) == 0 {
		return nil
	}

	allScored := true
	for _, f := range fixtures {
		if f.Scored() {
			continue
		}
		home, away, err := s.feed.Scores(ctx, f)
		if err != nil {
			if errors.Is(err, ErrResultUnavailable) {
				allScored = false
				continue
			}
			return err
		}
		if err := s.fixtures.SetScore(ctx, f.ID, home, away); err != nil {
			return err
		}
		log.Info().
			Int64("fixture_id", f.ID).
			Int("home_goals", home).
			Int("away_goals", away).
			Msg("Result sync: score recorded")
	}

	if !allScored {
		return nil
	}

	log.Info().
		Int64("game_id", game.ID).
		Int("round", game.CurrentRound).
		Msg("Result sync: round fully scored, settling")
	return s.settle(ctx, game.ID, game.CurrentRound)
}
