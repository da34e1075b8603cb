package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"survivor-pool-bot/internal/model"
)

// Fixture-related repository errors.
var (
	ErrFixtureNotFound = errors.New("fixture not found")
)

const fixtureColumns = "id, game_id, round_number, home_team_id, away_team_id, home_goals, away_goals, kickoff_at, external_ref, status"

// FixturePairing is one home/away pairing to schedule for a round.
type FixturePairing struct {
	HomeTeamID  int64
	AwayTeamID  int64
	KickoffAt   *time.Time
	ExternalRef *string
}

// FixtureRepository handles round fixtures and their final scores.
type FixtureRepository struct {
	db Querier
}

// NewFixtureRepository creates a new FixtureRepository instance.
func NewFixtureRepository(db Querier) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *FixtureRepository) WithTx(tx pgx.Tx) *FixtureRepository {
	return &FixtureRepository{db: tx}
}

func scanFixture(row pgx.Row) (*model.Fixture, error) {
	var f model.Fixture
	err := row.Scan(
		&f.ID,
		&f.GameID,
		&f.RoundNumber,
		&f.HomeTeamID,
		&f.AwayTeamID,
		&f.HomeGoals,
		&f.AwayGoals,
		&f.KickoffAt,
		&f.ExternalRef,
		&f.Status,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateBatch inserts the round's fixtures with no goals set.
func (r *FixtureRepository) CreateBatch(ctx context.Context, gameID int64, round int, pairings []FixturePairing) ([]*model.Fixture, error) {
	const query = `
		INSERT INTO fixtures (game_id, round_number, home_team_id, away_team_id, kickoff_at, external_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'SCHEDULED')
		RETURNING ` + fixtureColumns

	fixtures := make([]*model.Fixture, 0, len(pairings))
	for _, p := range pairings {
		f, err := scanFixture(r.db.QueryRow(ctx, query, gameID, round, p.HomeTeamID, p.AwayTeamID, p.KickoffAt, p.ExternalRef))
		if err != nil {
			return nil, fmt.Errorf("failed to create fixture: %w", err)
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, nil
}

// GetByID retrieves a fixture by ID.
func (r *FixtureRepository) GetByID(ctx context.Context, fixtureID int64) (*model.Fixture, error) {
	const query = `SELECT ` + fixtureColumns + ` FROM fixtures WHERE id = $1`

	f, err := scanFixture(r.db.QueryRow(ctx, query, fixtureID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFixtureNotFound
		}
		return nil, fmt.Errorf("failed to get fixture: %w", err)
	}
	return f, nil
}

// GetByExternalRef retrieves a fixture by its live-feed reference.
func (r *FixtureRepository) GetByExternalRef(ctx context.Context, ref string) (*model.Fixture, error) {
	const query = `SELECT ` + fixtureColumns + ` FROM fixtures WHERE external_ref = $1`

	f, err := scanFixture(r.db.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFixtureNotFound
		}
		return nil, fmt.Errorf("failed to get fixture by ref: %w", err)
	}
	return f, nil
}

// ListByRound retrieves all fixtures of a round ordered by ID.
func (r *FixtureRepository) ListByRound(ctx context.Context, gameID int64, round int) ([]*model.Fixture, error) {
	const query = `
		SELECT ` + fixtureColumns + `
		FROM fixtures
		WHERE game_id = $1 AND round_number = $2
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, gameID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list fixtures: %w", err)
	}
	defer rows.Close()

	var fixtures []*model.Fixture
	for rows.Next() {
		var f model.Fixture
		err := rows.Scan(
			&f.ID,
			&f.GameID,
			&f.RoundNumber,
			&f.HomeTeamID,
			&f.AwayTeamID,
			&f.HomeGoals,
			&f.AwayGoals,
			&f.KickoffAt,
			&f.ExternalRef,
			&f.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fixture: %w", err)
		}
		fixtures = append(fixtures, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fixtures: %w", err)
	}

	return fixtures, nil
}

// SetScore records the final score of a fixture and marks it finished.
// Live sync may overwrite a previously set score; the settlement service
// rejects score changes for rounds that were already settled.
func (r *FixtureRepository) SetScore(ctx context.Context, fixtureID int64, homeGoals, awayGoals int) error {
	const query = `
		UPDATE fixtures
		SET home_goals = $2, away_goals = $3, status = 'FINISHED'
		WHERE id = $1
	`

	result, err := r.db.Exec(ctx, query, fixtureID, homeGoals, awayGoals)
	if err != nil {
		return fmt.Errorf("failed to set score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrFixtureNotFound
	}
	return nil
}

// EarliestKickoff returns the earliest kickoff time of a round, or nil if
// no fixture of the round carries one. The pick deadline is this instant.
func (r *FixtureRepository) EarliestKickoff(ctx context.Context, gameID int64, round int) (*time.Time, error) {
	const query = `
		SELECT MIN(kickoff_at)
		FROM fixtures
		WHERE game_id = $1 AND round_number = $2
	`

	var kickoff *time.Time
	err := r.db.QueryRow(ctx, query, gameID, round).Scan(&kickoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get earliest kickoff: %w", err)
	}
	return kickoff, nil
}
