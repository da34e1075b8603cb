package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"survivor-pool-bot/internal/pkg/lock"
	"survivor-pool-bot/internal/repository"
	"survivor-pool-bot/internal/result"
	"survivor-pool-bot/internal/service"
)

// AdminHandler handles the admin commands: game setup, score entry,
// settlement and balance adjustments. Admin access is enforced by
// middleware before these handlers run.
type AdminHandler struct {
	catalog    *service.CatalogService
	settlement *service.SettlementService
	balances   *service.BalanceService
	userLock   *lock.KeyedLock
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	catalog *service.CatalogService,
	settlement *service.SettlementService,
	balances *service.BalanceService,
	userLock *lock.KeyedLock,
) *AdminHandler {
	return &AdminHandler{
		catalog:    catalog,
		settlement: settlement,
		balances:   balances,
		userLock:   userLock,
	}
}

// HandleCreateGame handles /create_game <title...> [rounds]. A trailing
// number is taken as the round count; otherwise the default applies.
func (h *AdminHandler) HandleCreateGame(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /create_game <title> [rounds]")
	}

	rounds := 0
	if len(args) >= 2 {
		if n, err := strconv.Atoi(args[len(args)-1]); err == nil {
			rounds = n
			args = args[:len(args)-1]
		}
	}
	title := strings.Join(args, " ")

	game, err := h.catalog.CreateGame(context.Background(), title, rounds, nil)
	if err != nil {
		return c.Reply("❌ Failed to create game")
	}
	return c.Reply(fmt.Sprintf("✅ Game #%d \"%s\" created, %d rounds", game.ID, game.Title, game.RoundsTotal))
}

// HandleAddTeams handles /add_teams <name>, <name>, ...
func (h *AdminHandler) HandleAddTeams(c tele.Context) error {
	raw := strings.Join(c.Args(), " ")
	if raw == "" {
		return c.Reply("Usage: /add_teams <name>, <name>, ...")
	}

	added, err := h.catalog.AddTeams(context.Background(), strings.Split(raw, ","))
	if err != nil {
		return c.Reply("❌ Failed to add teams")
	}
	return c.Reply(fmt.Sprintf("✅ %d new team(s) added", added))
}

// HandleAddFixtures handles
// /add_fixtures <game> <round> <Home>-<Away>, <Home>-<Away>, ...
func (h *AdminHandler) HandleAddFixtures(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return c.Reply("Usage: /add_fixtures <game> <round> <Home>-<Away>, ...")
	}

	gameID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Game id must be a number")
	}
	round, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Reply("❌ Round must be a number")
	}

	var pairs []service.FixturePair
	for _, chunk := range strings.Split(strings.Join(args[2:], " "), ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		sides := strings.SplitN(chunk, "-", 2)
		if len(sides) != 2 {
			return c.Reply(fmt.Sprintf("❌ Cannot parse pairing %q, expected Home-Away", chunk))
		}
		pairs = append(pairs, service.FixturePair{
			Home: strings.TrimSpace(sides[0]),
			Away: strings.TrimSpace(sides[1]),
		})
	}
	if len(pairs) == 0 {
		return c.Reply("❌ No pairings given")
	}

	fixtures, err := h.catalog.CreateFixtures(context.Background(), gameID, round, pairs)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrGameNotFound):
		return c.Reply("❌ No such game")
	case errors.Is(err, service.ErrGameNotActive):
		return c.Reply("❌ This game has finished")
	case errors.Is(err, service.ErrRoundSettled):
		return c.Reply("❌ That round was already settled")
	case errors.Is(err, service.ErrUnknownTeam):
		return c.Reply(fmt.Sprintf("❌ %s. Add it with /add_teams first", err))
	case errors.Is(err, service.ErrInvalidPairing):
		return c.Reply("❌ A team cannot play itself")
	default:
		return c.Reply("❌ Failed to create fixtures")
	}

	return c.Reply(fmt.Sprintf("✅ %d fixture(s) scheduled for game #%d round %d", len(fixtures), gameID, round))
}

// HandleSetScore handles /set_score <fixture> <home> <away>.
func (h *AdminHandler) HandleSetScore(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return c.Reply("Usage: /set_score <fixture> <home> <away>")
	}

	fixtureID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Fixture id must be a number")
	}
	home, err1 := strconv.Atoi(args[1])
	away, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		return c.Reply("❌ Goals must be numbers")
	}

	err = h.catalog.SetFinalScore(context.Background(), fixtureID, home, away)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrFixtureNotFound):
		return c.Reply("❌ No such fixture")
	case errors.Is(err, service.ErrRoundSettled):
		return c.Reply("❌ That round was already settled, its scores are frozen")
	case errors.Is(err, service.ErrInvalidScore):
		return c.Reply("❌ Goals must not be negative")
	default:
		return c.Reply("❌ Failed to record score")
	}

	return c.Reply(fmt.Sprintf("✅ Fixture %d: %d-%d", fixtureID, home, away))
}

// HandleResult handles /result <game> <Team>:<goals>, <Team>:<goals>, ...
// It maps the reported goals onto the current round's fixtures and then
// settles the round; fixtures left unreported get simulated scores.
func (h *AdminHandler) HandleResult(c tele.Context) error {
	ctx := context.Background()
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("Usage: /result <game> <Team>:<goals>, ...")
	}

	gameID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Game id must be a number")
	}

	goals := make(map[string]int)
	for _, chunk := range strings.Split(strings.Join(args[1:], " "), ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		parts := strings.SplitN(chunk, ":", 2)
		if len(parts) != 2 {
			return c.Reply(fmt.Sprintf("❌ Cannot parse %q, expected Team:goals", chunk))
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return c.Reply(fmt.Sprintf("❌ Cannot parse %q, expected Team:goals", chunk))
		}
		goals[strings.TrimSpace(parts[0])] = n
	}

	applied, err := h.catalog.ApplyTeamScores(ctx, gameID, goals)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrGameNotFound):
		return c.Reply("❌ No such game")
	case errors.Is(err, service.ErrGameNotActive):
		return c.Reply("❌ This game has finished")
	case errors.Is(err, service.ErrUnknownTeam):
		return c.Reply(fmt.Sprintf("❌ %s", err))
	case errors.Is(err, service.ErrInvalidScore):
		return c.Reply("❌ Goals must not be negative")
	default:
		return c.Reply("❌ Failed to record results")
	}

	summary, err := h.settlement.SettleCurrentRound(ctx, gameID)
	if err != nil {
		return h.replySettleError(c, err, fmt.Sprintf("✅ %d fixture(s) scored, but settlement failed", applied))
	}
	return c.Reply(settlementReport(summary))
}

// HandleSettle handles /settle <game>: settles the game's current round,
// simulating scores for any fixture still without one.
func (h *AdminHandler) HandleSettle(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /settle <game>")
	}
	gameID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Game id must be a number")
	}

	summary, err := h.settlement.SettleCurrentRound(context.Background(), gameID)
	if err != nil {
		return h.replySettleError(c, err, "")
	}
	return c.Reply(settlementReport(summary))
}

// HandleAdminAdd handles /admin_add <user> <amount>.
func (h *AdminHandler) HandleAdminAdd(c tele.Context) error {
	return h.adjust(c, false)
}

// HandleAdminSub handles /admin_sub <user> <amount>.
func (h *AdminHandler) HandleAdminSub(c tele.Context) error {
	return h.adjust(c, true)
}

// HandleConfirmDeposit handles /confirm_deposit <user> <amount> <tx_hash>.
// Re-confirming the same transaction hash is a safe no-op.
func (h *AdminHandler) HandleConfirmDeposit(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return c.Reply("Usage: /confirm_deposit <user> <amount> <tx_hash>")
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ User id must be a number")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return c.Reply("❌ Amount must be a number")
	}

	h.userLock.Lock(userID)
	defer h.userLock.Unlock(userID)

	applied, err := h.balances.ApplyDeposit(context.Background(), userID, amount, args[2])
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidAmount):
		return c.Reply("❌ Amount must be positive")
	case errors.Is(err, repository.ErrUserNotFound):
		return c.Reply("❌ No such user")
	default:
		return c.Reply("❌ Failed to confirm deposit")
	}

	if !applied {
		return c.Reply("ℹ️ This deposit was already credited")
	}
	return c.Reply(fmt.Sprintf("✅ Credited %s to user %d", amount.String(), userID))
}

func (h *AdminHandler) adjust(c tele.Context, subtract bool) error {
	args := c.Args()
	if len(args) < 2 {
		return c.Reply("Usage: /admin_add|/admin_sub <user> <amount>")
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ User id must be a number")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || !amount.IsPositive() {
		return c.Reply("❌ Amount must be a positive number")
	}
	if subtract {
		amount = amount.Neg()
	}

	h.userLock.Lock(userID)
	defer h.userLock.Unlock(userID)

	user, err := h.balances.AdminAdjust(context.Background(), userID, amount)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrUserNotFound):
		return c.Reply("❌ No such user")
	case errors.Is(err, service.ErrInsufficientBalance):
		return c.Reply("❌ User balance cannot cover that")
	default:
		return c.Reply("❌ Failed to adjust balance")
	}

	return c.Reply(fmt.Sprintf("✅ User %d balance is now %s", userID, user.Balance.String()))
}

func (h *AdminHandler) replySettleError(c tele.Context, err error, prefix string) error {
	var msg string
	switch {
	case errors.Is(err, repository.ErrGameNotFound):
		msg = "❌ No such game"
	case errors.Is(err, service.ErrGameNotActive):
		msg = "❌ This game has finished"
	case errors.Is(err, service.ErrRoundAlreadySettled):
		msg = "ℹ️ This round is already settled"
	case errors.Is(err, service.ErrNoFixtures):
		msg = "❌ The current round has no fixtures, add some with /add_fixtures"
	case errors.Is(err, result.ErrResultUnavailable):
		msg = "⏳ Some fixtures have no result yet, try again later"
	default:
		msg = "❌ Settlement failed, please try again later"
	}
	if prefix != "" {
		msg = prefix + "\n" + msg
	}
	return c.Reply(msg)
}

func settlementReport(s *service.SettlementSummary) string {
	msg := fmt.Sprintf(
		"🏁 Round %d of game #%d settled\n"+
			"━━━━━━━━━━━━━━━\n"+
			"✅ passed: %d\n"+
			"💀 failed: %d\n"+
			"😴 no pick: %d\n"+
			"🚪 entries out: %d",
		s.Round, s.GameID, s.TicketsPassed, s.TicketsFailed, s.TicketsNoPick, s.EntriesOut,
	)
	if s.GameFinished {
		msg += "\n🎉 The game is over! Cash out with /cashout"
	}
	return msg
}
