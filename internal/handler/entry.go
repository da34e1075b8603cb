// Package handler provides the Telegram command handlers. Handlers parse
// command arguments, call into the services and translate service errors
// into user-facing replies; they hold no game logic of their own.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"survivor-pool-bot/internal/model"
	"survivor-pool-bot/internal/pkg/lock"
	"survivor-pool-bot/internal/repository"
	"survivor-pool-bot/internal/service"
	"survivor-pool-bot/internal/survivor"
)

// EntryHandler handles joining games, picks and cash-out.
type EntryHandler struct {
	entries  *service.EntryService
	balances *service.BalanceService
	catalog  *service.CatalogService
	userLock *lock.KeyedLock
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(
	entries *service.EntryService,
	balances *service.BalanceService,
	catalog *service.CatalogService,
	userLock *lock.KeyedLock,
) *EntryHandler {
	return &EntryHandler{
		entries:  entries,
		balances: balances,
		catalog:  catalog,
		userLock: userLock,
	}
}

// HandleStart handles the /start command.
func (h *EntryHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, created, err := h.balances.Register(ctx, sender.ID, displayName(sender))
	if err != nil {
		return c.Reply("❌ Failed to set up your account, please try again later")
	}

	if created {
		return c.Reply(fmt.Sprintf(
			"🎉 Welcome, @%s!\n\n"+
				"Your account is ready.\n\n"+
				"Commands:\n"+
				"/games - active games\n"+
				"/join <game> <stake> [tickets] - enter a game\n"+
				"/pick <game> <ticket> <team1>, <team2> - submit a pick\n"+
				"/available <game> <ticket> - teams you can still pick\n"+
				"/cashout <game> - cash out your entry\n"+
				"/my - your entries\n"+
				"/balance - your balance\n"+
				"/wallet <address> - set withdrawal wallet\n"+
				"/withdraw <amount> - request a withdrawal",
			user.Username,
		))
	}

	return c.Reply(fmt.Sprintf("👋 Welcome back, @%s!\nBalance: %s", user.Username, user.Balance.String()))
}

// HandleGames handles the /games command.
func (h *EntryHandler) HandleGames(c tele.Context) error {
	games, err := h.catalog.ListActiveGames(context.Background())
	if err != nil {
		return c.Reply("❌ Failed to list games, please try again later")
	}
	if len(games) == 0 {
		return c.Reply("📭 No active games right now")
	}

	msg := "⚽ Active games\n━━━━━━━━━━━━━━━\n"
	for _, g := range games {
		msg += fmt.Sprintf("#%d %s — round %d/%d\n", g.ID, g.Title, g.CurrentRound, g.RoundsTotal)
	}
	return c.Reply(msg)
}

// HandleMy handles the /my command.
func (h *EntryHandler) HandleMy(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	statuses, err := h.entries.ListByUser(context.Background(), sender.ID)
	if err != nil {
		return c.Reply("❌ Failed to load your entries, please try again later")
	}
	if len(statuses) == 0 {
		return c.Reply("📭 You have not joined any games. Use /join <game> <stake>")
	}

	msg := "📊 Your entries\n"
	for _, st := range statuses {
		msg += fmt.Sprintf(
			"━━━━━━━━━━━━━━━\n#%d %s — round %d/%d\nEntry: %s\n",
			st.Game.ID, st.Game.Title, st.Game.CurrentRound, st.Game.RoundsTotal,
			entryStatusLabel(st.Entry.Status),
		)
		for _, t := range st.Tickets {
			marker := "🎟"
			if t.Status == model.TicketStatusOut {
				marker = "💀"
			}
			msg += fmt.Sprintf("%s ticket %d: %s\n", marker, t.TicketIndex, t.StakeAmount.String())
		}
	}
	return c.Reply(msg)
}

// HandleJoin handles the /join command: /join <game> <stake> [tickets].
func (h *EntryHandler) HandleJoin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("Usage: /join <game> <stake> [tickets]")
	}

	gameID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Game id must be a number")
	}
	stake, err := decimal.NewFromString(args[1])
	if err != nil || !stake.IsPositive() {
		return c.Reply("❌ Stake must be a positive number")
	}
	ticketCount := 1
	if len(args) >= 3 {
		ticketCount, err = strconv.Atoi(args[2])
		if err != nil {
			return c.Reply("❌ Ticket count must be a number")
		}
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	if _, _, err := h.balances.Register(ctx, sender.ID, displayName(sender)); err != nil {
		return c.Reply("❌ Failed to set up your account, please try again later")
	}

	entry, err := h.entries.Join(ctx, sender.ID, gameID, stake, ticketCount)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrGameNotFound):
		return c.Reply("❌ No such game")
	case errors.Is(err, service.ErrGameNotActive):
		return c.Reply("❌ This game is not accepting entries")
	case errors.Is(err, service.ErrAlreadyJoined):
		return c.Reply("❌ You already joined this game")
	case errors.Is(err, service.ErrStakeTooSmall):
		return c.Reply("❌ Stake is below the minimum")
	case errors.Is(err, service.ErrTooManyTickets):
		return c.Reply("❌ Ticket count is out of range")
	case errors.Is(err, service.ErrInsufficientBalance):
		return c.Reply("❌ Insufficient balance")
	default:
		return c.Reply("❌ Failed to join, please try again later")
	}

	total := stake.Mul(decimal.NewFromInt(int64(ticketCount)))
	return c.Reply(fmt.Sprintf(
		"✅ You are in game #%d with %d ticket(s) at %s each (total %s).\n"+
			"Submit picks with /pick %d <ticket> <team1>, <team2>",
		entry.GameID, ticketCount, stake.String(), total.String(), entry.GameID,
	))
}

// HandlePick handles the /pick command:
// /pick <game> <ticket> <team1>, <team2>.
func (h *EntryHandler) HandlePick(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 3 {
		return c.Reply("Usage: /pick <game> <ticket> <team1>, <team2>")
	}

	gameID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Game id must be a number")
	}
	ticketIndex, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Reply("❌ Ticket number must be a number")
	}
	teamA, teamB, ok := parseTeamPair(strings.Join(args[2:], " "))
	if !ok {
		return c.Reply("❌ Name two teams separated by a comma")
	}

	pick, err := h.entries.SubmitPick(context.Background(), sender.ID, gameID, ticketIndex, teamA, teamB)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrEntryNotFound):
		return c.Reply("❌ You have not joined this game")
	case errors.Is(err, repository.ErrTicketNotFound):
		return c.Reply("❌ No such ticket")
	case errors.Is(err, service.ErrEntryNotActive):
		return c.Reply("❌ Your entry is no longer active")
	case errors.Is(err, service.ErrTicketNotActive):
		return c.Reply("❌ This ticket is out")
	case errors.Is(err, service.ErrGameNotActive):
		return c.Reply("❌ This game has finished")
	case errors.Is(err, service.ErrRoundClosed):
		return c.Reply("❌ The round has kicked off, picks are closed")
	case errors.Is(err, service.ErrUnknownTeam):
		return c.Reply("❌ Unknown team name")
	case errors.Is(err, survivor.ErrDuplicateTeamChoice):
		return c.Reply("❌ Pick two different teams")
	case errors.Is(err, survivor.ErrTeamNotInRound):
		return c.Reply("❌ That team does not play this round")
	case errors.Is(err, survivor.ErrTeamAlreadyUsed):
		return c.Reply("❌ This ticket already used that team. See /available")
	default:
		return c.Reply("❌ Failed to submit pick, please try again later")
	}

	return c.Reply(fmt.Sprintf(
		"✅ Pick saved for round %d, ticket %d: %s + %s.\n"+
			"Both must score. You can resubmit until kickoff.",
		pick.RoundNumber, pick.TicketIndex, teamA, teamB,
	))
}

// HandleAvailable handles the /available command:
// /available <game> <ticket>.
func (h *EntryHandler) HandleAvailable(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 2 {
		return c.Reply("Usage: /available <game> <ticket>")
	}
	gameID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Game id must be a number")
	}
	ticketIndex, err := strconv.Atoi(args[1])
	if err != nil {
		return c.Reply("❌ Ticket number must be a number")
	}

	teams, err := h.catalog.AvailableTeams(context.Background(), sender.ID, gameID, ticketIndex)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrEntryNotFound):
		return c.Reply("❌ You have not joined this game")
	default:
		return c.Reply("❌ Failed to load teams, please try again later")
	}

	if len(teams) == 0 {
		return c.Reply("📭 No teams left to pick this round")
	}
	names := make([]string, 0, len(teams))
	for _, t := range teams {
		names = append(names, t.Name)
	}
	return c.Reply("⚽ Available this round:\n" + strings.Join(names, ", "))
}

// HandleCashOut handles the /cashout command: /cashout <game>.
func (h *EntryHandler) HandleCashOut(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /cashout <game>")
	}
	gameID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Reply("❌ Game id must be a number")
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	amount, err := h.entries.CashOut(ctx, sender.ID, gameID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrEntryNotFound):
		return c.Reply("❌ You have not joined this game")
	case errors.Is(err, service.ErrEntryNotActive):
		return c.Reply("❌ This entry was already cashed out or is out")
	default:
		return c.Reply("❌ Failed to cash out, please try again later")
	}

	return c.Reply(fmt.Sprintf("💸 Cashed out %s from game #%d", amount.String(), gameID))
}

// parseTeamPair splits "Team One, Team Two" into its two names. Without a
// comma it falls back to two space-separated words.
func parseTeamPair(s string) (string, string, bool) {
	if strings.Contains(s, ",") {
		parts := strings.SplitN(s, ",", 2)
		a := strings.TrimSpace(parts[0])
		b := strings.TrimSpace(parts[1])
		if a == "" || b == "" {
			return "", "", false
		}
		return a, b, true
	}
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func entryStatusLabel(status string) string {
	switch status {
	case model.EntryStatusActive:
		return "✅ active"
	case model.EntryStatusOut:
		return "💀 out"
	case model.EntryStatusCashedOut:
		return "💸 cashed out"
	default:
		return status
	}
}

func displayName(sender *tele.User) string {
	if sender.Username != "" {
		return sender.Username
	}
	return sender.FirstName
}
