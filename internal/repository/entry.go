package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"survivor-pool-bot/internal/model"
)

// Entry-related repository errors.
var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrTicketNotFound = errors.New("ticket not found")
)

const entryColumns = "id, user_id, game_id, status, legacy_stake, created_at"
const ticketColumns = "id, entry_id, ticket_index, stake_amount, status"

// EntryWithGame pairs an entry with its game for listing.
type EntryWithGame struct {
	Entry model.Entry
	Game  model.Game
}

// EntryRepository owns the canonical state of entries, tickets and picks.
type EntryRepository struct {
	db Querier
}

// NewEntryRepository creates a new EntryRepository instance.
func NewEntryRepository(db Querier) *EntryRepository {
	return &EntryRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *EntryRepository) WithTx(tx pgx.Tx) *EntryRepository {
	return &EntryRepository{db: tx}
}

func scanEntry(row pgx.Row) (*model.Entry, error) {
	var e model.Entry
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.GameID,
		&e.Status,
		&e.LegacyStake,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create creates an active entry for (user, game). The unique index on
// (user_id, game_id) makes a duplicate join fail at the database even when
// two requests race past the service-level existence check.
func (r *EntryRepository) Create(ctx context.Context, userID, gameID int64) (*model.Entry, error) {
	const query = `
		INSERT INTO entries (user_id, game_id, status, created_at)
		VALUES ($1, $2, 'active', NOW())
		RETURNING ` + entryColumns

	entry, err := scanEntry(r.db.QueryRow(ctx, query, userID, gameID))
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	return entry, nil
}

// GetByID retrieves an entry by ID.
func (r *EntryRepository) GetByID(ctx context.Context, entryID int64) (*model.Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM entries WHERE id = $1`

	entry, err := scanEntry(r.db.QueryRow(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// GetByIDForUpdate retrieves an entry and locks its row for the duration
// of the surrounding transaction.
func (r *EntryRepository) GetByIDForUpdate(ctx context.Context, entryID int64) (*model.Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM entries WHERE id = $1 FOR UPDATE`

	entry, err := scanEntry(r.db.QueryRow(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to lock entry: %w", err)
	}
	return entry, nil
}

// GetByUserAndGame retrieves a user's entry in a game regardless of status.
func (r *EntryRepository) GetByUserAndGame(ctx context.Context, userID, gameID int64) (*model.Entry, error) {
	const query = `SELECT ` + entryColumns + ` FROM entries WHERE user_id = $1 AND game_id = $2`

	entry, err := scanEntry(r.db.QueryRow(ctx, query, userID, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// ListByUser retrieves a user's entries with their games, newest first.
func (r *EntryRepository) ListByUser(ctx context.Context, userID int64) ([]*EntryWithGame, error) {
	const query = `
		SELECT e.id, e.user_id, e.game_id, e.status, e.legacy_stake, e.created_at,
		       g.id, g.title, g.rounds_total, g.current_round, g.status, g.start_round, g.created_at
		FROM entries e
		JOIN games g ON e.game_id = g.id
		WHERE e.user_id = $1
		ORDER BY e.id DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var result []*EntryWithGame
	for rows.Next() {
		var ewg EntryWithGame
		err := rows.Scan(
			&ewg.Entry.ID,
			&ewg.Entry.UserID,
			&ewg.Entry.GameID,
			&ewg.Entry.Status,
			&ewg.Entry.LegacyStake,
			&ewg.Entry.CreatedAt,
			&ewg.Game.ID,
			&ewg.Game.Title,
			&ewg.Game.RoundsTotal,
			&ewg.Game.CurrentRound,
			&ewg.Game.Status,
			&ewg.Game.StartRound,
			&ewg.Game.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		result = append(result, &ewg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return result, nil
}

// ListActiveByGame retrieves all active entries of a game.
func (r *EntryRepository) ListActiveByGame(ctx context.Context, gameID int64) ([]*model.Entry, error) {
	const query = `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE game_id = $1 AND status = 'active'
		ORDER BY id
	`

	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.GameID, &e.Status, &e.LegacyStake, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// TransitionStatus moves an entry from one status to another. Returns
// false when the entry was not in the expected status, which gives
// cash-out its one-shot guarantee.
func (r *EntryRepository) TransitionStatus(ctx context.Context, entryID int64, from, to string) (bool, error) {
	const query = `UPDATE entries SET status = $3 WHERE id = $1 AND status = $2`

	result, err := r.db.Exec(ctx, query, entryID, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to transition entry status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListLegacyEntries retrieves entries that still carry a legacy single
// stake and own no tickets. Input to the one-time backfill migration.
func (r *EntryRepository) ListLegacyEntries(ctx context.Context) ([]*model.Entry, error) {
	const query = `
		SELECT ` + entryColumns + `
		FROM entries e
		WHERE e.legacy_stake IS NOT NULL
		  AND NOT EXISTS (SELECT 1 FROM tickets t WHERE t.entry_id = e.id)
		ORDER BY e.id
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.GameID, &e.Status, &e.LegacyStake, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, nil
}

// ClearLegacyStake nulls the legacy stake after backfilling a ticket.
func (r *EntryRepository) ClearLegacyStake(ctx context.Context, entryID int64) error {
	const query = `UPDATE entries SET legacy_stake = NULL WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, entryID); err != nil {
		return fmt.Errorf("failed to clear legacy stake: %w", err)
	}
	return nil
}

// ========== Tickets ==========

// CreateTicket creates one ticket within an entry.
func (r *EntryRepository) CreateTicket(ctx context.Context, entryID int64, ticketIndex int, stake decimal.Decimal) (*model.Ticket, error) {
	const query = `
		INSERT INTO tickets (entry_id, ticket_index, stake_amount, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING ` + ticketColumns

	var t model.Ticket
	err := r.db.QueryRow(ctx, query, entryID, ticketIndex, stake).Scan(
		&t.ID,
		&t.EntryID,
		&t.TicketIndex,
		&t.StakeAmount,
		&t.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return &t, nil
}

// ListTickets retrieves an entry's tickets ordered by ticket index.
func (r *EntryRepository) ListTickets(ctx context.Context, entryID int64) ([]*model.Ticket, error) {
	const query = `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE entry_id = $1
		ORDER BY ticket_index
	`

	rows, err := r.db.Query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.EntryID, &t.TicketIndex, &t.StakeAmount, &t.Status); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tickets: %w", err)
	}

	return tickets, nil
}

// GetTicket retrieves one ticket of an entry by its index.
func (r *EntryRepository) GetTicket(ctx context.Context, entryID int64, ticketIndex int) (*model.Ticket, error) {
	const query = `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE entry_id = $1 AND ticket_index = $2
	`

	var t model.Ticket
	err := r.db.QueryRow(ctx, query, entryID, ticketIndex).Scan(
		&t.ID,
		&t.EntryID,
		&t.TicketIndex,
		&t.StakeAmount,
		&t.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}

// UpdateTicketStake sets a ticket's stake to its compounded value.
func (r *EntryRepository) UpdateTicketStake(ctx context.Context, ticketID int64, stake decimal.Decimal) error {
	const query = `UPDATE tickets SET stake_amount = $2 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, ticketID, stake)
	if err != nil {
		return fmt.Errorf("failed to update ticket stake: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// MarkTicketOut transitions a ticket to out, freezing its stake.
func (r *EntryRepository) MarkTicketOut(ctx context.Context, ticketID int64) error {
	const query = `UPDATE tickets SET status = 'out' WHERE id = $1`

	result, err := r.db.Exec(ctx, query, ticketID)
	if err != nil {
		return fmt.Errorf("failed to mark ticket out: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// CountActiveTickets returns how many of an entry's tickets are active.
func (r *EntryRepository) CountActiveTickets(ctx context.Context, entryID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE entry_id = $1 AND status = 'active'`

	var count int
	if err := r.db.QueryRow(ctx, query, entryID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active tickets: %w", err)
	}
	return count, nil
}

// ========== Picks ==========

// UpsertPick stores a ticket's pick for a round, replacing any earlier
// submission for the same (entry, ticket, round).
func (r *EntryRepository) UpsertPick(ctx context.Context, entryID int64, ticketIndex, round int, teamAID, teamBID int64) (*model.Pick, error) {
	const query = `
		INSERT INTO picks (entry_id, ticket_index, round_number, team_a_id, team_b_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entry_id, ticket_index, round_number)
		DO UPDATE SET team_a_id = $4, team_b_id = $5
		RETURNING id, entry_id, ticket_index, round_number, team_a_id, team_b_id
	`

	var p model.Pick
	err := r.db.QueryRow(ctx, query, entryID, ticketIndex, round, teamAID, teamBID).Scan(
		&p.ID,
		&p.EntryID,
		&p.TicketIndex,
		&p.RoundNumber,
		&p.TeamAID,
		&p.TeamBID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pick: %w", err)
	}
	return &p, nil
}

// ListPicksByTicket retrieves a ticket's full pick history.
func (r *EntryRepository) ListPicksByTicket(ctx context.Context, entryID int64, ticketIndex int) ([]*model.Pick, error) {
	const query = `
		SELECT id, entry_id, ticket_index, round_number, team_a_id, team_b_id
		FROM picks
		WHERE entry_id = $1 AND ticket_index = $2
		ORDER BY round_number
	`

	rows, err := r.db.Query(ctx, query, entryID, ticketIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to list picks: %w", err)
	}
	defer rows.Close()

	return collectPicks(rows)
}

// ListPicksByEntryAndRound retrieves all of an entry's picks for a round.
func (r *EntryRepository) ListPicksByEntryAndRound(ctx context.Context, entryID int64, round int) ([]*model.Pick, error) {
	const query = `
		SELECT id, entry_id, ticket_index, round_number, team_a_id, team_b_id
		FROM picks
		WHERE entry_id = $1 AND round_number = $2
		ORDER BY ticket_index
	`

	rows, err := r.db.Query(ctx, query, entryID, round)
	if err != nil {
		return nil, fmt.Errorf("failed to list round picks: %w", err)
	}
	defer rows.Close()

	return collectPicks(rows)
}

func collectPicks(rows pgx.Rows) ([]*model.Pick, error) {
	var picks []*model.Pick
	for rows.Next() {
		var p model.Pick
		if err := rows.Scan(&p.ID, &p.EntryID, &p.TicketIndex, &p.RoundNumber, &p.TeamAID, &p.TeamBID); err != nil {
			return nil, fmt.Errorf("failed to scan pick: %w", err)
		}
		picks = append(picks, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating picks: %w", err)
	}
	return picks, nil
}
