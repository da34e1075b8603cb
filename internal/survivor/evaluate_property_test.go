package survivor

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"survivor-pool-bot/internal/model"
)

func genTickets(t *rapid.T) []*model.Ticket {
	numTickets := rapid.IntRange(1, 8).Draw(t, "numTickets")
	tickets := make([]*model.Ticket, numTickets)
	for i := range tickets {
		status := model.TicketStatusActive
		if rapid.Bool().Draw(t, "ticketOut") {
			status = model.TicketStatusOut
		}
		stake := decimal.New(rapid.Int64Range(1, 1000000).Draw(t, "stake"), -2)
		tickets[i] = &model.Ticket{
			ID:          int64(i + 1),
			TicketIndex: i + 1,
			StakeAmount: stake,
			Status:      status,
		}
	}
	return tickets
}

func genPicks(t *rapid.T, tickets []*model.Ticket) []*model.Pick {
	var picks []*model.Pick
	for _, tk := range tickets {
		if !rapid.Bool().Draw(t, "hasPick") {
			continue
		}
		picks = append(picks, &model.Pick{
			TicketIndex: tk.TicketIndex,
			TeamAID:     rapid.Int64Range(1, 20).Draw(t, "teamA"),
			TeamBID:     rapid.Int64Range(1, 20).Draw(t, "teamB"),
		})
	}
	return picks
}

func genScored(t *rapid.T) map[int64]bool {
	scored := make(map[int64]bool)
	for _, id := range rapid.SliceOfDistinct(rapid.Int64Range(1, 20), func(v int64) int64 { return v }).Draw(t, "scored") {
		scored[id] = true
	}
	return scored
}

// Evaluation is deterministic: equal inputs always yield equal results.
func TestEvaluateRoundDeterministicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tickets := genTickets(t)
		picks := genPicks(t, tickets)
		scored := genScored(t)
		multiplier := decimal.RequireFromString("1.5")

		first := EvaluateRound(tickets, picks, scored, multiplier)
		second := EvaluateRound(tickets, picks, scored, multiplier)

		if len(first) != len(second) {
			t.Fatalf("result count mismatch: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i].Outcome != second[i].Outcome || !first[i].NewStake.Equal(second[i].NewStake) {
				t.Fatalf("result %d differs between runs: %+v vs %+v", i, first[i], second[i])
			}
		}
	})
}

// A ticket's stake changes only when it passes, and then by exactly the
// multiplier; every other outcome leaves the stake untouched.
func TestEvaluateRoundStakeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tickets := genTickets(t)
		picks := genPicks(t, tickets)
		scored := genScored(t)
		multiplier := decimal.New(rapid.Int64Range(101, 300).Draw(t, "multiplier"), -2)

		byIndex := make(map[int]*model.Ticket, len(tickets))
		for _, tk := range tickets {
			byIndex[tk.TicketIndex] = tk
		}

		for _, res := range EvaluateRound(tickets, picks, scored, multiplier) {
			before := byIndex[res.TicketIndex].StakeAmount
			switch res.Outcome {
			case OutcomePassed:
				if !res.NewStake.Equal(before.Mul(multiplier)) {
					t.Fatalf("passed ticket %d: stake %s, expected %s", res.TicketIndex, res.NewStake, before.Mul(multiplier))
				}
			default:
				if !res.NewStake.Equal(before) {
					t.Fatalf("outcome %d ticket %d: stake changed from %s to %s", res.Outcome, res.TicketIndex, before, res.NewStake)
				}
			}
		}
	})
}

// A ticket passes exactly when it is active, has a pick and both picked
// teams are in the scored set.
func TestEvaluateRoundOutcomeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tickets := genTickets(t)
		picks := genPicks(t, tickets)
		scored := genScored(t)

		pickByIndex := make(map[int]*model.Pick, len(picks))
		for _, p := range picks {
			pickByIndex[p.TicketIndex] = p
		}
		statusByIndex := make(map[int]string, len(tickets))
		for _, tk := range tickets {
			statusByIndex[tk.TicketIndex] = tk.Status
		}

		for _, res := range EvaluateRound(tickets, picks, scored, decimal.RequireFromString("1.5")) {
			pick, hasPick := pickByIndex[res.TicketIndex]
			active := statusByIndex[res.TicketIndex] == model.TicketStatusActive

			var want Outcome
			switch {
			case !active:
				want = OutcomeSkipped
			case !hasPick:
				want = OutcomeNoPick
			case scored[pick.TeamAID] && scored[pick.TeamBID]:
				want = OutcomePassed
			default:
				want = OutcomeFailed
			}

			if res.Outcome != want {
				t.Fatalf("ticket %d: outcome %d, expected %d (active=%v hasPick=%v)",
					res.TicketIndex, res.Outcome, want, active, hasPick)
			}
		}
	})
}

// ValidatePick accepts a pick only when both teams play in the round, are
// distinct and neither was used before.
func TestValidatePickProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		roundTeams := make(map[int64]bool)
		for _, id := range rapid.SliceOfNDistinct(rapid.Int64Range(1, 30), 2, 30, func(v int64) int64 { return v }).Draw(t, "roundTeams") {
			roundTeams[id] = true
		}
		used := genScored(t)

		teamA := rapid.Int64Range(1, 30).Draw(t, "teamA")
		teamB := rapid.Int64Range(1, 30).Draw(t, "teamB")

		err := ValidatePick(teamA, teamB, used, roundTeams)
		valid := teamA != teamB &&
			roundTeams[teamA] && roundTeams[teamB] &&
			!used[teamA] && !used[teamB]

		if valid && err != nil {
			t.Fatalf("valid pick (%d, %d) rejected: %v", teamA, teamB, err)
		}
		if !valid && err == nil {
			t.Fatalf("invalid pick (%d, %d) accepted (used=%v, round=%v)", teamA, teamB, used, roundTeams)
		}
	})
}

// The cash-out value is the sum of active ticket stakes, nothing else.
func TestActiveStakeSumProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tickets := genTickets(t)

		want := decimal.Zero
		for _, tk := range tickets {
			if tk.Status == model.TicketStatusActive {
				want = want.Add(tk.StakeAmount)
			}
		}

		if got := ActiveStakeSum(tickets); !got.Equal(want) {
			t.Fatalf("sum mismatch: got %s, want %s", got, want)
		}
	})
}
