package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v3"

	"survivor-pool-bot/internal/pkg/lock"
	"survivor-pool-bot/internal/repository"
	"survivor-pool-bot/internal/service"
)

// WalletHandler handles balances, wallets, withdrawals and the leaderboard.
type WalletHandler struct {
	balances *service.BalanceService
	userLock *lock.KeyedLock
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(balances *service.BalanceService, userLock *lock.KeyedLock) *WalletHandler {
	return &WalletHandler{balances: balances, userLock: userLock}
}

// HandleBalance handles the /balance command.
func (h *WalletHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, _, err := h.balances.Register(ctx, sender.ID, displayName(sender))
	if err != nil {
		return c.Reply("❌ Failed to load your balance, please try again later")
	}

	return c.Reply(fmt.Sprintf("💰 Balance: %s", user.Balance.String()))
}

// HandleWallet handles the /wallet command. With an argument it stores the
// withdrawal address, without one it shows the current address.
func (h *WalletHandler) HandleWallet(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) == 0 {
		user, err := h.balances.Balance(ctx, sender.ID)
		if err != nil || user.WalletAddress == nil {
			return c.Reply("📭 No wallet set. Use /wallet <address>")
		}
		return c.Reply(fmt.Sprintf("👛 Wallet: %s", *user.WalletAddress))
	}

	err := h.balances.SetWallet(ctx, sender.ID, args[0])
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidWallet):
		return c.Reply("❌ That does not look like a wallet address (EQ... or UQ..., 48 characters)")
	case errors.Is(err, repository.ErrUserNotFound):
		return c.Reply("❌ Use /start first")
	default:
		return c.Reply("❌ Failed to save wallet, please try again later")
	}

	return c.Reply("✅ Wallet saved")
}

// HandleWithdraw handles the /withdraw command: /withdraw <amount>.
func (h *WalletHandler) HandleWithdraw(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("Usage: /withdraw <amount>")
	}
	amount, err := decimal.NewFromString(args[0])
	if err != nil || !amount.IsPositive() {
		return c.Reply("❌ Amount must be a positive number")
	}

	h.userLock.Lock(sender.ID)
	defer h.userLock.Unlock(sender.ID)

	requestID, err := h.balances.Withdraw(ctx, sender.ID, amount)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrWithdrawTooSmall):
		return c.Reply("❌ Amount is below the withdrawal minimum")
	case errors.Is(err, service.ErrWalletNotSet):
		return c.Reply("❌ Set a wallet first with /wallet <address>")
	case errors.Is(err, service.ErrInsufficientBalance):
		return c.Reply("❌ Insufficient balance")
	case errors.Is(err, repository.ErrUserNotFound):
		return c.Reply("❌ Use /start first")
	default:
		return c.Reply("❌ Failed to request withdrawal, please try again later")
	}

	return c.Reply(fmt.Sprintf(
		"✅ Withdrawal of %s requested.\nReference: %s\nPayouts are processed manually.",
		amount.String(), requestID,
	))
}

// HandleHistory handles the /history command.
func (h *WalletHandler) HandleHistory(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	records, err := h.balances.History(context.Background(), sender.ID, 10)
	if err != nil {
		return c.Reply("❌ Failed to load history, please try again later")
	}
	if len(records) == 0 {
		return c.Reply("📭 No transactions yet")
	}

	msg := "🧾 Recent transactions\n━━━━━━━━━━━━━━━\n"
	for _, r := range records {
		sign := ""
		if r.Amount.IsPositive() {
			sign = "+"
		}
		msg += fmt.Sprintf("%s%s  %s\n", sign, r.Amount.String(), r.Type)
	}
	return c.Reply(msg)
}

// HandleTop handles the /top command.
func (h *WalletHandler) HandleTop(c tele.Context) error {
	users, err := h.balances.Leaderboard(context.Background(), 10)
	if err != nil {
		return c.Reply("❌ Failed to load the leaderboard, please try again later")
	}
	if len(users) == 0 {
		return c.Reply("📭 Nobody here yet")
	}

	var sb strings.Builder
	sb.WriteString("🏆 Top balances\n━━━━━━━━━━━━━━━\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, u := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := u.Username
		if name == "" {
			name = fmt.Sprintf("User%d", u.TelegramID)
		}
		sb.WriteString(fmt.Sprintf("%s @%s: %s\n", rank, name, u.Balance.String()))
	}
	return c.Reply(sb.String())
}
