// Package survivor implements the pure round-settlement rules: the scored
// set, pick evaluation, team-reuse checks and stake compounding. It does no
// I/O; the service layer applies its results inside a database transaction.
package survivor

import (
	"errors"

	"github.com/shopspring/decimal"

	"survivor-pool-bot/internal/model"
)

// Pick validation errors.
var (
	ErrDuplicateTeamChoice = errors.New("pick names the same team twice")
	ErrTeamAlreadyUsed     = errors.New("team already used by this ticket")
	ErrTeamNotInRound      = errors.New("team does not play in this round")
)

// Outcome is the result of evaluating one ticket for a round.
type Outcome int

const (
	// OutcomeSkipped means the ticket was already out before the round.
	OutcomeSkipped Outcome = iota
	// OutcomeNoPick means no pick was submitted; the ticket carries
	// forward unchanged, neither passing nor failing.
	OutcomeNoPick
	// OutcomePassed means both picked teams scored; the stake compounds.
	OutcomePassed
	// OutcomeFailed means at least one picked team did not score.
	OutcomeFailed
)

// Result describes what settlement must apply to one ticket.
type Result struct {
	TicketID    int64
	TicketIndex int
	Outcome     Outcome
	NewStake    decimal.Decimal
}

// ScoredTeams computes the set of team ids that netted at least one goal
// across the given fixtures. A 0-0 fixture contributes no team; fixtures
// without recorded goals contribute nothing.
func ScoredTeams(fixtures []*model.Fixture) map[int64]bool {
	scored := make(map[int64]bool)
	for _, f := range fixtures {
		if !f.Scored() {
			continue
		}
		if *f.HomeGoals >= 1 {
			scored[f.HomeTeamID] = true
		}
		if *f.AwayGoals >= 1 {
			scored[f.AwayTeamID] = true
		}
	}
	return scored
}

// PickPasses reports whether both of the pick's teams are in the scored set.
func PickPasses(pick *model.Pick, scored map[int64]bool) bool {
	return scored[pick.TeamAID] && scored[pick.TeamBID]
}

// UsedTeamIDs aggregates every team id from a ticket's pick history.
func UsedTeamIDs(picks []*model.Pick) map[int64]bool {
	used := make(map[int64]bool, len(picks)*2)
	for _, p := range picks {
		used[p.TeamAID] = true
		used[p.TeamBID] = true
	}
	return used
}

// ValidatePick checks a candidate pick against the ticket's used-team
// history and the set of teams playing in the round. Picks replacing an
// earlier submission for the same round must exclude that submission's
// teams from the used set before calling.
func ValidatePick(teamA, teamB int64, used map[int64]bool, roundTeams map[int64]bool) error {
	if teamA == teamB {
		return ErrDuplicateTeamChoice
	}
	if !roundTeams[teamA] || !roundTeams[teamB] {
		return ErrTeamNotInRound
	}
	if used[teamA] || used[teamB] {
		return ErrTeamAlreadyUsed
	}
	return nil
}

// EvaluateRound evaluates every ticket against the round's scored set.
// Tickets already out are skipped; tickets without a pick for the round are
// left untouched. Passing tickets get stake × multiplier at full precision.
// The function is deterministic: equal inputs produce equal results, which
// is what makes repeated settlement of the same round safe to reason about.
func EvaluateRound(tickets []*model.Ticket, picks []*model.Pick, scored map[int64]bool, multiplier decimal.Decimal) []Result {
	pickByIndex := make(map[int]*model.Pick, len(picks))
	for _, p := range picks {
		pickByIndex[p.TicketIndex] = p
	}

	results := make([]Result, 0, len(tickets))
	for _, t := range tickets {
		r := Result{TicketID: t.ID, TicketIndex: t.TicketIndex, NewStake: t.StakeAmount}

		if t.Status != model.TicketStatusActive {
			r.Outcome = OutcomeSkipped
			results = append(results, r)
			continue
		}

		pick, ok := pickByIndex[t.TicketIndex]
		if !ok {
			r.Outcome = OutcomeNoPick
			results = append(results, r)
			continue
		}

		if PickPasses(pick, scored) {
			r.Outcome = OutcomePassed
			r.NewStake = t.StakeAmount.Mul(multiplier)
		} else {
			r.Outcome = OutcomeFailed
		}
		results = append(results, r)
	}
	return results
}

// ActiveStakeSum returns the cash-out value of an entry: the sum of
// stake_amount over its still-active tickets.
func ActiveStakeSum(tickets []*model.Ticket) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range tickets {
		if t.Status == model.TicketStatusActive {
			sum = sum.Add(t.StakeAmount)
		}
	}
	return sum
}
