// Package result supplies fixture scores to the settlement engine. The
// engine only sees the Source interface; behind it sit a random simulator
// and a live-feed client, swappable without touching settlement.
package result

import (
	"context"
	"errors"

	"survivor-pool-bot/internal/model"
)

// ErrResultUnavailable is returned when a score cannot be produced yet,
// e.g. the live feed is unreachable or the fixture has not finished.
var ErrResultUnavailable = errors.New("fixture result unavailable")

// Source supplies the final score for one fixture.
type Source interface {
	Scores(ctx context.Context, fixture *model.Fixture) (homeGoals, awayGoals int, err error)
}
