// Package model defines the data models for the survivor pool bot.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a Telegram user account with a spendable balance.
type User struct {
	TelegramID    int64           `db:"telegram_id"`
	Username      string          `db:"username"`
	Balance       decimal.Decimal `db:"balance"`
	WalletAddress *string         `db:"wallet_address"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// Game statuses.
const (
	GameStatusActive   = "active"
	GameStatusFinished = "finished"
)

// Game is a survivor pool running over a fixed number of rounds.
// CurrentRound advances by exactly one per settlement and never decreases.
type Game struct {
	ID           int64     `db:"id"`
	Title        string    `db:"title"`
	RoundsTotal  int       `db:"rounds_total"`
	CurrentRound int       `db:"current_round"`
	Status       string    `db:"status"`
	StartRound   *int      `db:"start_round"`
	CreatedAt    time.Time `db:"created_at"`
}

// Team is an immutable team identity, unique by name.
type Team struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Fixture statuses reported by the live feed.
const (
	FixtureStatusScheduled = "SCHEDULED"
	FixtureStatusFinished  = "FINISHED"
)

// Fixture is one scheduled pairing within a game round. Goals stay NULL
// until the round is scored by simulation or live sync.
type Fixture struct {
	ID          int64      `db:"id"`
	GameID      int64      `db:"game_id"`
	RoundNumber int        `db:"round_number"`
	HomeTeamID  int64      `db:"home_team_id"`
	AwayTeamID  int64      `db:"away_team_id"`
	HomeGoals   *int       `db:"home_goals"`
	AwayGoals   *int       `db:"away_goals"`
	KickoffAt   *time.Time `db:"kickoff_at"`
	ExternalRef *string    `db:"external_ref"`
	Status      *string    `db:"status"`
}

// Scored reports whether both goal counts have been recorded.
func (f *Fixture) Scored() bool {
	return f.HomeGoals != nil && f.AwayGoals != nil
}

// Entry statuses.
const (
	EntryStatusActive    = "active"
	EntryStatusOut       = "out"
	EntryStatusCashedOut = "cashed_out"
)

// Entry is a user's participation in one game. At most one per (user, game).
// LegacyStake is only read by the one-time ticket backfill migration.
type Entry struct {
	ID          int64            `db:"id"`
	UserID      int64            `db:"user_id"`
	GameID      int64            `db:"game_id"`
	Status      string           `db:"status"`
	LegacyStake *decimal.Decimal `db:"legacy_stake"`
	CreatedAt   time.Time        `db:"created_at"`
}

// Ticket statuses.
const (
	TicketStatusActive = "active"
	TicketStatusOut    = "out"
)

// Ticket is one independent stake path within an entry. Its stake only
// changes at settlement: multiplied when the round's pick passes, frozen
// when the ticket goes out.
type Ticket struct {
	ID          int64           `db:"id"`
	EntryID     int64           `db:"entry_id"`
	TicketIndex int             `db:"ticket_index"`
	StakeAmount decimal.Decimal `db:"stake_amount"`
	Status      string          `db:"status"`
}

// Pick is the two teams a ticket backs to each score in a round.
// One pick per (entry, ticket_index, round); resubmitting replaces it.
type Pick struct {
	ID          int64 `db:"id"`
	EntryID     int64 `db:"entry_id"`
	TicketIndex int   `db:"ticket_index"`
	RoundNumber int   `db:"round_number"`
	TeamAID     int64 `db:"team_a_id"`
	TeamBID     int64 `db:"team_b_id"`
}

// Transaction records a balance change in the money ledger.
type Transaction struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Amount      decimal.Decimal `db:"amount"`
	Type        string          `db:"type"`
	Description *string         `db:"description"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeJoinStake = "join_stake" // Stake debited when joining a game
	TxTypeCashOut   = "cash_out"   // Active ticket stakes credited on cash-out
	TxTypeDeposit   = "deposit"    // Confirmed external deposit
	TxTypeWithdraw  = "withdraw"   // Withdrawal request debit
	TxTypeAdminAdd  = "admin_add"  // Admin added balance
	TxTypeAdminSub  = "admin_sub"  // Admin subtracted balance
)

// Deposit is a confirmed external deposit, applied at most once per key.
type Deposit struct {
	IdempotencyKey string          `db:"idempotency_key"`
	UserID         int64           `db:"user_id"`
	Amount         decimal.Decimal `db:"amount"`
	AppliedAt      time.Time       `db:"applied_at"`
}
