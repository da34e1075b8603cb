package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"survivor-pool-bot/internal/model"
)

// Team-related repository errors.
var (
	ErrTeamNotFound = errors.New("team not found")
)

// TeamRepository handles the team pool.
type TeamRepository struct {
	db Querier
}

// NewTeamRepository creates a new TeamRepository instance.
func NewTeamRepository(db Querier) *TeamRepository {
	return &TeamRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TeamRepository) WithTx(tx pgx.Tx) *TeamRepository {
	return &TeamRepository{db: tx}
}

// CreateIfAbsent inserts a team by name, reporting whether a new row was
// created. Names are unique; re-adding an existing team is a no-op.
func (r *TeamRepository) CreateIfAbsent(ctx context.Context, name string) (bool, error) {
	const query = `
		INSERT INTO teams (name)
		VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, name)
	if err != nil {
		return false, fmt.Errorf("failed to create team: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetByName retrieves a team by its exact name.
func (r *TeamRepository) GetByName(ctx context.Context, name string) (*model.Team, error) {
	const query = `SELECT id, name FROM teams WHERE name = $1`

	var team model.Team
	err := r.db.QueryRow(ctx, query, name).Scan(&team.ID, &team.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// GetByID retrieves a team by ID.
func (r *TeamRepository) GetByID(ctx context.Context, teamID int64) (*model.Team, error) {
	const query = `SELECT id, name FROM teams WHERE id = $1`

	var team model.Team
	err := r.db.QueryRow(ctx, query, teamID).Scan(&team.ID, &team.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	return &team, nil
}

// ListAll retrieves every team ordered by name.
func (r *TeamRepository) ListAll(ctx context.Context) ([]*model.Team, error) {
	const query = `SELECT id, name FROM teams ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	return collectTeams(rows)
}

// ListByRound retrieves the distinct teams appearing in a round's fixtures.
func (r *TeamRepository) ListByRound(ctx context.Context, gameID int64, round int) ([]*model.Team, error) {
	const query = `
		SELECT DISTINCT t.id, t.name
		FROM teams t
		JOIN fixtures f ON t.id IN (f.home_team_id, f.away_team_id)
		WHERE f.game_id = $1 AND f.round_number = $2
		ORDER BY t.name
	`

	rows, err := r.db.Query(ctx, query, gameID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list round teams: %w", err)
	}
	defer rows.Close()

	return collectTeams(rows)
}

func collectTeams(rows pgx.Rows) ([]*model.Team, error) {
	var teams []*model.Team
	for rows.Next() {
		var team model.Team
		if err := rows.Scan(&team.ID, &team.Name); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}
	return teams, nil
}
