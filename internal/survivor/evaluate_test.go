package survivor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survivor-pool-bot/internal/model"
)

func intPtr(n int) *int { return &n }

func fixture(home, away int64, homeGoals, awayGoals *int) *model.Fixture {
	return &model.Fixture{
		HomeTeamID: home,
		AwayTeamID: away,
		HomeGoals:  homeGoals,
		AwayGoals:  awayGoals,
	}
}

func TestScoredTeams(t *testing.T) {
	// A beats B 2-0, C and D draw 0-0: only A scored.
	fixtures := []*model.Fixture{
		fixture(1, 2, intPtr(2), intPtr(0)),
		fixture(3, 4, intPtr(0), intPtr(0)),
	}

	scored := ScoredTeams(fixtures)
	assert.Equal(t, map[int64]bool{1: true}, scored)
}

func TestScoredTeams_UnscoredFixtureContributesNothing(t *testing.T) {
	fixtures := []*model.Fixture{
		fixture(1, 2, intPtr(3), nil),
		fixture(3, 4, nil, nil),
	}

	assert.Empty(t, ScoredTeams(fixtures))
}

func TestScoredTeams_BothSidesCanScore(t *testing.T) {
	fixtures := []*model.Fixture{
		fixture(1, 2, intPtr(2), intPtr(1)),
	}

	scored := ScoredTeams(fixtures)
	assert.True(t, scored[1])
	assert.True(t, scored[2])
}

func TestPickPasses(t *testing.T) {
	scored := map[int64]bool{1: true, 3: true}

	assert.True(t, PickPasses(&model.Pick{TeamAID: 1, TeamBID: 3}, scored))
	// One scorer is not enough, both teams must score.
	assert.False(t, PickPasses(&model.Pick{TeamAID: 1, TeamBID: 2}, scored))
	assert.False(t, PickPasses(&model.Pick{TeamAID: 2, TeamBID: 4}, scored))
}

func TestValidatePick(t *testing.T) {
	roundTeams := map[int64]bool{1: true, 2: true, 3: true, 4: true}
	used := map[int64]bool{3: true}

	assert.NoError(t, ValidatePick(1, 2, used, roundTeams))
	assert.ErrorIs(t, ValidatePick(1, 1, used, roundTeams), ErrDuplicateTeamChoice)
	assert.ErrorIs(t, ValidatePick(1, 9, used, roundTeams), ErrTeamNotInRound)
	assert.ErrorIs(t, ValidatePick(1, 3, used, roundTeams), ErrTeamAlreadyUsed)
}

func TestEvaluateRound(t *testing.T) {
	stake := decimal.RequireFromString("10")
	multiplier := decimal.RequireFromString("1.5")

	tickets := []*model.Ticket{
		{ID: 1, TicketIndex: 1, StakeAmount: stake, Status: model.TicketStatusActive},
		{ID: 2, TicketIndex: 2, StakeAmount: stake, Status: model.TicketStatusActive},
		{ID: 3, TicketIndex: 3, StakeAmount: stake, Status: model.TicketStatusActive},
		{ID: 4, TicketIndex: 4, StakeAmount: stake, Status: model.TicketStatusOut},
	}
	picks := []*model.Pick{
		{TicketIndex: 1, TeamAID: 1, TeamBID: 3}, // both scored
		{TicketIndex: 2, TeamAID: 1, TeamBID: 2}, // team 2 did not score
		// ticket 3 has no pick
		{TicketIndex: 4, TeamAID: 1, TeamBID: 3}, // ticket already out
	}
	scored := map[int64]bool{1: true, 3: true}

	results := EvaluateRound(tickets, picks, scored, multiplier)
	require.Len(t, results, 4)

	assert.Equal(t, OutcomePassed, results[0].Outcome)
	assert.True(t, results[0].NewStake.Equal(decimal.RequireFromString("15")))

	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	assert.True(t, results[1].NewStake.Equal(stake))

	assert.Equal(t, OutcomeNoPick, results[2].Outcome)
	assert.True(t, results[2].NewStake.Equal(stake))

	assert.Equal(t, OutcomeSkipped, results[3].Outcome)
	assert.True(t, results[3].NewStake.Equal(stake))
}

func TestEvaluateRound_CompoundingAcrossRounds(t *testing.T) {
	stake := decimal.RequireFromString("2")
	multiplier := decimal.RequireFromString("1.5")
	scored := map[int64]bool{1: true, 2: true}

	ticket := &model.Ticket{ID: 1, TicketIndex: 1, StakeAmount: stake, Status: model.TicketStatusActive}
	pick := &model.Pick{TicketIndex: 1, TeamAID: 1, TeamBID: 2}

	// Surviving k rounds multiplies the stake by 1.5^k exactly.
	for i := 0; i < 5; i++ {
		results := EvaluateRound([]*model.Ticket{ticket}, []*model.Pick{pick}, scored, multiplier)
		require.Len(t, results, 1)
		ticket.StakeAmount = results[0].NewStake
	}
	want := stake.Mul(multiplier.Pow(decimal.NewFromInt(5)))
	assert.True(t, ticket.StakeAmount.Equal(want), "got %s, want %s", ticket.StakeAmount, want)
}

func TestUsedTeamIDs(t *testing.T) {
	picks := []*model.Pick{
		{TeamAID: 1, TeamBID: 2},
		{TeamAID: 3, TeamBID: 4},
	}

	used := UsedTeamIDs(picks)
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true, 4: true}, used)
}

func TestActiveStakeSum(t *testing.T) {
	tickets := []*model.Ticket{
		{StakeAmount: decimal.RequireFromString("15"), Status: model.TicketStatusActive},
		{StakeAmount: decimal.RequireFromString("10"), Status: model.TicketStatusOut},
		{StakeAmount: decimal.RequireFromString("22.5"), Status: model.TicketStatusActive},
	}

	sum := ActiveStakeSum(tickets)
	assert.True(t, sum.Equal(decimal.RequireFromString("37.5")), "got %s", sum)
}

func TestActiveStakeSum_Empty(t *testing.T) {
	assert.True(t, ActiveStakeSum(nil).IsZero())
}
