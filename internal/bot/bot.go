package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"survivor-pool-bot/internal/config"
	"survivor-pool-bot/internal/handler"
	"survivor-pool-bot/internal/pkg/lock"
	"survivor-pool-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	entryHandler  *handler.EntryHandler
	walletHandler *handler.WalletHandler
	adminHandler  *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config            *config.Config
	EntryService      *service.EntryService
	BalanceService    *service.BalanceService
	CatalogService    *service.CatalogService
	SettlementService *service.SettlementService
	UserLock          *lock.KeyedLock
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,
	}

	b.entryHandler = handler.NewEntryHandler(deps.EntryService, deps.BalanceService, deps.CatalogService, deps.UserLock)
	b.walletHandler = handler.NewWalletHandler(deps.BalanceService, deps.UserLock)
	b.adminHandler = handler.NewAdminHandler(deps.CatalogService, deps.SettlementService, deps.BalanceService, deps.UserLock)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
}

// registerHandlers registers all command handlers.
func (b *Bot) registerHandlers() {
	// Entry handlers
	b.bot.Handle("/start", b.entryHandler.HandleStart)
	b.bot.Handle("/games", b.entryHandler.HandleGames)
	b.bot.Handle("/my", b.entryHandler.HandleMy)
	b.bot.Handle("/join", b.entryHandler.HandleJoin)
	b.bot.Handle("/pick", b.entryHandler.HandlePick)
	b.bot.Handle("/available", b.entryHandler.HandleAvailable)
	b.bot.Handle("/cashout", b.entryHandler.HandleCashOut)

	// Wallet handlers
	b.bot.Handle("/balance", b.walletHandler.HandleBalance)
	b.bot.Handle("/wallet", b.walletHandler.HandleWallet)
	b.bot.Handle("/withdraw", b.walletHandler.HandleWithdraw)
	b.bot.Handle("/history", b.walletHandler.HandleHistory)
	b.bot.Handle("/top", b.walletHandler.HandleTop)

	// Admin handlers (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/create_game", b.adminHandler.HandleCreateGame)
	adminGroup.Handle("/add_teams", b.adminHandler.HandleAddTeams)
	adminGroup.Handle("/add_fixtures", b.adminHandler.HandleAddFixtures)
	adminGroup.Handle("/set_score", b.adminHandler.HandleSetScore)
	adminGroup.Handle("/result", b.adminHandler.HandleResult)
	adminGroup.Handle("/settle", b.adminHandler.HandleSettle)
	adminGroup.Handle("/admin_add", b.adminHandler.HandleAdminAdd)
	adminGroup.Handle("/admin_sub", b.adminHandler.HandleAdminSub)
	adminGroup.Handle("/confirm_deposit", b.adminHandler.HandleConfirmDeposit)
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// GetBot returns the underlying telebot instance.
func (b *Bot) GetBot() *tele.Bot {
	return b.bot
}
