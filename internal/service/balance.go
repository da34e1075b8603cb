package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"survivor-pool-bot/internal/config"
	"survivor-pool-bot/internal/model"
	"survivor-pool-bot/internal/pkg/db"
	"survivor-pool-bot/internal/repository"
)

// Balance-related errors.
var (
	ErrInvalidAmount    = errors.New("invalid amount: must be positive")
	ErrWithdrawTooSmall = errors.New("withdrawal below the minimum")
	ErrWalletNotSet     = errors.New("wallet address not set")
	ErrInvalidWallet    = errors.New("invalid wallet address")
)

// walletAddressLen is the length of a base64url TON address.
const walletAddressLen = 48

// BalanceService handles user accounts, the money ledger, deposits and
// withdrawal requests.
type BalanceService struct {
	pool     *db.Pool
	game     config.GameConfig
	userRepo *repository.UserRepository
	txRepo   *repository.TransactionRepository
}

// NewBalanceService creates a new BalanceService instance.
func NewBalanceService(
	pool *db.Pool,
	game config.GameConfig,
	userRepo *repository.UserRepository,
	txRepo *repository.TransactionRepository,
) *BalanceService {
	return &BalanceService{
		pool:     pool,
		game:     game,
		userRepo: userRepo,
		txRepo:   txRepo,
	}
}

// Register retrieves the user's account, creating it on first contact.
// Returns true when a new account was created.
func (s *BalanceService) Register(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, telegramID, username)
	if err != nil {
		return nil, false, err
	}
	if !created && username != "" && username != user.Username {
		if err := s.userRepo.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to refresh username")
		} else {
			user.Username = username
		}
	}
	return user, created, nil
}

// Balance retrieves a user's account.
func (s *BalanceService) Balance(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.userRepo.GetByID(ctx, telegramID)
}

// History retrieves a user's most recent ledger records.
func (s *BalanceService) History(ctx context.Context, telegramID int64, limit int) ([]*model.Transaction, error) {
	return s.txRepo.GetByUserID(ctx, telegramID, limit)
}

// Leaderboard retrieves the top users by balance.
func (s *BalanceService) Leaderboard(ctx context.Context, limit int) ([]*model.User, error) {
	return s.userRepo.GetTopUsers(ctx, limit)
}

// ApplyDeposit credits a confirmed external deposit at most once per
// idempotency key. Returns false when the key was already applied; the
// credit and the deposit record commit in one transaction, so a crash
// between them cannot double-pay or lose money.
func (s *BalanceService) ApplyDeposit(ctx context.Context, telegramID int64, amount decimal.Decimal, idempotencyKey string) (bool, error) {
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin deposit: %w", err)
	}
	defer tx.Rollback(ctx)

	inserted, err := s.txRepo.WithTx(tx).RecordDeposit(ctx, idempotencyKey, telegramID, amount)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if _, err := s.userRepo.WithTx(tx).Credit(ctx, telegramID, amount); err != nil {
		return false, err
	}
	desc := fmt.Sprintf("deposit %s", idempotencyKey)
	if _, err := s.txRepo.WithTx(tx).Create(ctx, telegramID, amount, model.TxTypeDeposit, &desc); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit deposit: %w", err)
	}

	log.Info().
		Int64("user_id", telegramID).
		Str("amount", amount.String()).
		Str("key", idempotencyKey).
		Msg("Deposit applied")

	return true, nil
}

// SetWallet stores the user's withdrawal wallet address after validating
// its shape.
func (s *BalanceService) SetWallet(ctx context.Context, telegramID int64, address string) error {
	address = strings.TrimSpace(address)
	if !validWalletAddress(address) {
		return ErrInvalidWallet
	}
	return s.userRepo.SetWalletAddress(ctx, telegramID, address)
}

// Withdraw debits the amount and records a withdrawal request against the
// user's stored wallet address. Returns the request reference handed to
// the payout operator.
func (s *BalanceService) Withdraw(ctx context.Context, telegramID int64, amount decimal.Decimal) (string, error) {
	if amount.LessThan(s.game.MinWithdrawAmount()) {
		return "", ErrWithdrawTooSmall
	}

	user, err := s.userRepo.GetByID(ctx, telegramID)
	if err != nil {
		return "", err
	}
	if user.WalletAddress == nil {
		return "", ErrWalletNotSet
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin withdrawal: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := s.userRepo.WithTx(tx).Debit(ctx, telegramID, amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return "", ErrInsufficientBalance
		}
		return "", err
	}

	requestID := uuid.NewString()
	desc := fmt.Sprintf("request %s to %s", requestID, *user.WalletAddress)
	if _, err := s.txRepo.WithTx(tx).Create(ctx, telegramID, amount.Neg(), model.TxTypeWithdraw, &desc); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit withdrawal: %w", err)
	}

	log.Info().
		Int64("user_id", telegramID).
		Str("amount", amount.String()).
		Str("request_id", requestID).
		Msg("Withdrawal requested")

	return requestID, nil
}

// AdminAdjust credits (positive delta) or debits (negative delta) a user's
// balance and records the change in the ledger.
func (s *BalanceService) AdminAdjust(ctx context.Context, telegramID int64, delta decimal.Decimal) (*model.User, error) {
	if delta.IsZero() {
		return nil, ErrInvalidAmount
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin adjustment: %w", err)
	}
	defer tx.Rollback(ctx)

	users := s.userRepo.WithTx(tx)
	var user *model.User
	txType := model.TxTypeAdminAdd
	if delta.IsPositive() {
		user, err = users.Credit(ctx, telegramID, delta)
	} else {
		txType = model.TxTypeAdminSub
		user, err = users.Debit(ctx, telegramID, delta.Neg())
	}
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	if _, err := s.txRepo.WithTx(tx).Create(ctx, telegramID, delta, txType, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit adjustment: %w", err)
	}

	log.Info().
		Int64("user_id", telegramID).
		Str("delta", delta.String()).
		Msg("Admin balance adjustment")

	return user, nil
}

// validWalletAddress accepts user-friendly TON addresses: 48 characters
// starting with EQ or UQ.
func validWalletAddress(address string) bool {
	if len(address) != walletAddressLen {
		return false
	}
	return strings.HasPrefix(address, "EQ") || strings.HasPrefix(address, "UQ")
}
