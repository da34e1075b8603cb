package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"survivor-pool-bot/internal/model"
)

// Game-related repository errors.
var (
	ErrGameNotFound = errors.New("game not found")
)

const gameColumns = "id, title, rounds_total, current_round, status, start_round, created_at"

// GameRepository handles game persistence and the round counter.
type GameRepository struct {
	db Querier
}

// NewGameRepository creates a new GameRepository instance.
func NewGameRepository(db Querier) *GameRepository {
	return &GameRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *GameRepository) WithTx(tx pgx.Tx) *GameRepository {
	return &GameRepository{db: tx}
}

func scanGame(row pgx.Row) (*model.Game, error) {
	var g model.Game
	err := row.Scan(
		&g.ID,
		&g.Title,
		&g.RoundsTotal,
		&g.CurrentRound,
		&g.Status,
		&g.StartRound,
		&g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Create creates a new active game starting at round 1.
func (r *GameRepository) Create(ctx context.Context, title string, roundsTotal int, startRound *int) (*model.Game, error) {
	const query = `
		INSERT INTO games (title, rounds_total, current_round, status, start_round, created_at)
		VALUES ($1, $2, 1, 'active', $3, NOW())
		RETURNING ` + gameColumns

	game, err := scanGame(r.db.QueryRow(ctx, query, title, roundsTotal, startRound))
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return game, nil
}

// GetByID retrieves a game by ID.
func (r *GameRepository) GetByID(ctx context.Context, gameID int64) (*model.Game, error) {
	const query = `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	game, err := scanGame(r.db.QueryRow(ctx, query, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return game, nil
}

// GetByIDForUpdate retrieves a game and locks its row for the duration of
// the surrounding transaction. Settlement uses this so two concurrent
// triggers for the same round serialize on the game row.
func (r *GameRepository) GetByIDForUpdate(ctx context.Context, gameID int64) (*model.Game, error) {
	const query = `SELECT ` + gameColumns + ` FROM games WHERE id = $1 FOR UPDATE`

	game, err := scanGame(r.db.QueryRow(ctx, query, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("failed to lock game: %w", err)
	}
	return game, nil
}

// AdvanceRound moves the game from fromRound to fromRound+1, finishing the
// game when the new round exceeds rounds_total. The update is conditional
// on current_round still being fromRound: a second settlement of the same
// round matches zero rows and reports false instead of double-advancing.
func (r *GameRepository) AdvanceRound(ctx context.Context, gameID int64, fromRound int) (bool, error) {
	const query = `
		UPDATE games
		SET current_round = current_round + 1,
		    status = CASE WHEN current_round + 1 > rounds_total THEN 'finished' ELSE status END
		WHERE id = $1 AND current_round = $2 AND status = 'active'
	`

	result, err := r.db.Exec(ctx, query, gameID, fromRound)
	if err != nil {
		return false, fmt.Errorf("failed to advance round: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListActive retrieves all active games, oldest first.
func (r *GameRepository) ListActive(ctx context.Context) ([]*model.Game, error) {
	const query = `SELECT ` + gameColumns + ` FROM games WHERE status = 'active' ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active games: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		var g model.Game
		err := rows.Scan(
			&g.ID,
			&g.Title,
			&g.RoundsTotal,
			&g.CurrentRound,
			&g.Status,
			&g.StartRound,
			&g.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, &g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating games: %w", err)
	}

	return games, nil
}
