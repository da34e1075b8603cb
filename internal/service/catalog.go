package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"survivor-pool-bot/internal/config"
	"survivor-pool-bot/internal/model"
	"survivor-pool-bot/internal/pkg/db"
	"survivor-pool-bot/internal/repository"
)

// Catalog-related errors.
var (
	ErrRoundSettled   = errors.New("round already settled")
	ErrInvalidPairing = errors.New("fixture pairs a team with itself")
	ErrInvalidScore   = errors.New("goals must not be negative")
)

// FixturePair is one home/away pairing by team name.
type FixturePair struct {
	Home        string
	Away        string
	KickoffAt   *time.Time
	ExternalRef *string
}

// CatalogService manages games, the team pool and round fixtures.
type CatalogService struct {
	pool        *db.Pool
	game        config.GameConfig
	gameRepo    *repository.GameRepository
	teamRepo    *repository.TeamRepository
	fixtureRepo *repository.FixtureRepository
	entryRepo   *repository.EntryRepository
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(
	pool *db.Pool,
	game config.GameConfig,
	gameRepo *repository.GameRepository,
	teamRepo *repository.TeamRepository,
	fixtureRepo *repository.FixtureRepository,
	entryRepo *repository.EntryRepository,
) *CatalogService {
	return &CatalogService{
		pool:        pool,
		game:        game,
		gameRepo:    gameRepo,
		teamRepo:    teamRepo,
		fixtureRepo: fixtureRepo,
		entryRepo:   entryRepo,
	}
}

// CreateGame creates a new active game. A non-positive rounds value falls
// back to the configured default.
func (s *CatalogService) CreateGame(ctx context.Context, title string, rounds int, startRound *int) (*model.Game, error) {
	if rounds <= 0 {
		rounds = s.game.DefaultRounds
	}
	game, err := s.gameRepo.Create(ctx, title, rounds, startRound)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("game_id", game.ID).
		Str("title", title).
		Int("rounds", rounds).
		Msg("Game created")

	return game, nil
}

// GetGame retrieves a game by ID.
func (s *CatalogService) GetGame(ctx context.Context, gameID int64) (*model.Game, error) {
	return s.gameRepo.GetByID(ctx, gameID)
}

// ListActiveGames retrieves all active games.
func (s *CatalogService) ListActiveGames(ctx context.Context) ([]*model.Game, error) {
	return s.gameRepo.ListActive(ctx)
}

// AddTeams adds teams to the pool by name, skipping blanks and names that
// already exist. Returns how many teams were actually created.
func (s *CatalogService) AddTeams(ctx context.Context, names []string) (int, error) {
	added := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		created, err := s.teamRepo.CreateIfAbsent(ctx, name)
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
	}
	return added, nil
}

// ListTeams retrieves every team in the pool.
func (s *CatalogService) ListTeams(ctx context.Context) ([]*model.Team, error) {
	return s.teamRepo.ListAll(ctx)
}

// CreateFixtures schedules the given pairings for a round of the game.
// Team names must exist in the pool, a team cannot play itself, and
// fixtures cannot be added to a round that was already settled.
func (s *CatalogService) CreateFixtures(ctx context.Context, gameID int64, round int, pairs []FixturePair) ([]*model.Fixture, error) {
	game, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusActive {
		return nil, ErrGameNotActive
	}
	if round < game.CurrentRound {
		return nil, ErrRoundSettled
	}

	pairings := make([]repository.FixturePairing, 0, len(pairs))
	for _, p := range pairs {
		if strings.EqualFold(p.Home, p.Away) {
			return nil, ErrInvalidPairing
		}
		home, err := s.teamRepo.GetByName(ctx, p.Home)
		if err != nil {
			if errors.Is(err, repository.ErrTeamNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTeam, p.Home)
			}
			return nil, err
		}
		away, err := s.teamRepo.GetByName(ctx, p.Away)
		if err != nil {
			if errors.Is(err, repository.ErrTeamNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownTeam, p.Away)
			}
			return nil, err
		}
		pairings = append(pairings, repository.FixturePairing{
			HomeTeamID:  home.ID,
			AwayTeamID:  away.ID,
			KickoffAt:   p.KickoffAt,
			ExternalRef: p.ExternalRef,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin fixture creation: %w", err)
	}
	defer tx.Rollback(ctx)

	fixtures, err := s.fixtureRepo.WithTx(tx).CreateBatch(ctx, gameID, round, pairings)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit fixture creation: %w", err)
	}

	log.Info().
		Int64("game_id", gameID).
		Int("round", round).
		Int("fixtures", len(fixtures)).
		Msg("Fixtures created")

	return fixtures, nil
}

// ListFixtures retrieves a round's fixtures.
func (s *CatalogService) ListFixtures(ctx context.Context, gameID int64, round int) ([]*model.Fixture, error) {
	return s.fixtureRepo.ListByRound(ctx, gameID, round)
}

// SetFinalScore records the final score of one fixture. Scores of rounds
// the game has already settled are immutable.
func (s *CatalogService) SetFinalScore(ctx context.Context, fixtureID int64, homeGoals, awayGoals int) error {
	if homeGoals < 0 || awayGoals < 0 {
		return ErrInvalidScore
	}

	fixture, err := s.fixtureRepo.GetByID(ctx, fixtureID)
	if err != nil {
		return err
	}
	game, err := s.gameRepo.GetByID(ctx, fixture.GameID)
	if err != nil {
		return err
	}
	if fixture.RoundNumber < game.CurrentRound || game.Status != model.GameStatusActive {
		return ErrRoundSettled
	}

	return s.fixtureRepo.SetScore(ctx, fixtureID, homeGoals, awayGoals)
}

// ApplyTeamScores maps per-team goal counts onto the current round's
// fixtures, recording a fixture's score once both its teams are reported.
// Returns how many fixtures were scored.
func (s *CatalogService) ApplyTeamScores(ctx context.Context, gameID int64, goals map[string]int) (int, error) {
	for _, g := range goals {
		if g < 0 {
			return 0, ErrInvalidScore
		}
	}

	game, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if game.Status != model.GameStatusActive {
		return 0, ErrGameNotActive
	}

	fixtures, err := s.fixtureRepo.ListByRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		return 0, err
	}
	teams, err := s.teamRepo.ListByRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		return 0, err
	}
	nameByID := make(map[int64]string, len(teams))
	for _, t := range teams {
		nameByID[t.ID] = t.Name
	}

	for name := range goals {
		found := false
		for _, t := range teams {
			if t.Name == name {
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %s", ErrUnknownTeam, name)
		}
	}

	applied := 0
	for _, f := range fixtures {
		home, homeOK := goals[nameByID[f.HomeTeamID]]
		away, awayOK := goals[nameByID[f.AwayTeamID]]
		if !homeOK || !awayOK {
			continue
		}
		if err := s.fixtureRepo.SetScore(ctx, f.ID, home, away); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// AvailableTeams retrieves the teams a ticket may still pick in the game's
// current round: teams playing in the round minus the ticket's used teams
// from previous rounds. The current round's own pick does not block its
// teams, since resubmitting replaces it.
func (s *CatalogService) AvailableTeams(ctx context.Context, userID, gameID int64, ticketIndex int) ([]*model.Team, error) {
	entry, err := s.entryRepo.GetByUserAndGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	game, err := s.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		return nil, err
	}

	roundTeams, err := s.teamRepo.ListByRound(ctx, gameID, game.CurrentRound)
	if err != nil {
		return nil, err
	}
	picks, err := s.entryRepo.ListPicksByTicket(ctx, entry.ID, ticketIndex)
	if err != nil {
		return nil, err
	}

	used := make(map[int64]bool, len(picks)*2)
	for _, p := range picks {
		if p.RoundNumber == game.CurrentRound {
			continue
		}
		used[p.TeamAID] = true
		used[p.TeamBID] = true
	}

	available := make([]*model.Team, 0, len(roundTeams))
	for _, t := range roundTeams {
		if !used[t.ID] {
			available = append(available, t)
		}
	}
	return available, nil
}

// UsedTeams retrieves the teams a ticket has backed in any round so far.
func (s *CatalogService) UsedTeams(ctx context.Context, userID, gameID int64, ticketIndex int) ([]*model.Team, error) {
	entry, err := s.entryRepo.GetByUserAndGame(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	picks, err := s.entryRepo.ListPicksByTicket(ctx, entry.ID, ticketIndex)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(picks)*2)
	var teams []*model.Team
	for _, p := range picks {
		for _, id := range []int64{p.TeamAID, p.TeamBID} {
			if seen[id] {
				continue
			}
			seen[id] = true
			team, err := s.teamRepo.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			teams = append(teams, team)
		}
	}
	return teams, nil
}
