// Package bot implements the Telegram control surface: the approval
// workflow UI, filter and source management, and engine notifications.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"engagepilot/internal/config"
	"engagepilot/internal/model"
	"engagepilot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// DecisionSink receives approval decisions made by the reviewer.
type DecisionSink interface {
	Resolve(decision model.Decision) bool
}

// EngineControl is the part of the engine the bot can drive.
type EngineControl interface {
	Pause()
	Resume()
	IsRunning() bool
	ProcessedCount() int
	Tone() string
	SetTone(tone string)
}

// StatusSource reports current pacing counters for /status.
type StatusSource interface {
	Counters() (session, daily int)
}

// Bot is the Telegram bot that reviews drafted replies and manages the
// engine's configuration.
type Bot struct {
	api       telegramAPI
	store     storage.Storage
	cfg       *config.Config
	decisions DecisionSink
	engine    EngineControl
	status    StatusSource
	log       *slog.Logger

	mu        sync.Mutex
	pendingID string // approval request awaiting a decision
}

// New creates a Bot with the given Telegram token and collaborators.
func New(token string, store storage.Storage, cfg *config.Config, decisions DecisionSink, engine EngineControl, status StatusSource, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:       api,
		store:     store,
		cfg:       cfg,
		decisions: decisions,
		engine:    engine,
		status:    status,
		log:       log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			if update.Message.IsCommand() {
				b.handleCommand(ctx, update.Message)
				continue
			}
			// A plain message while an approval is pending is manual
			// reply input.
			b.handleManualInput(update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// Accomplishment notifies the configured chat about a completed action.
func (b *Bot) Accomplishment(msg string) {
	b.SendMessage(b.cfg.TelegramChatID, msg)
}

// ApprovalRequested presents a drafted reply for review with the
// decision keyboard. Implements the approval notifier contract.
func (b *Bot) ApprovalRequested(req model.ApprovalRequest) {
	b.mu.Lock()
	b.pendingID = req.ID
	b.mu.Unlock()

	msg := tgbotapi.NewMessage(b.cfg.TelegramChatID, FormatApprovalRequest(req))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Accept", "approve:"+req.ID),
			tgbotapi.NewInlineKeyboardButtonData("Regenerate", "regen:"+req.ID),
			tgbotapi.NewInlineKeyboardButtonData("Skip", "skip:"+req.ID),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send approval request", "request_id", req.ID, "error", err)
	}
}

func (b *Bot) handleManualInput(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	b.mu.Lock()
	id := b.pendingID
	b.pendingID = ""
	b.mu.Unlock()

	if id == "" {
		b.reply(msg.Chat.ID, "No approval pending. Use /help for commands.")
		return
	}

	ok := b.decisions.Resolve(model.Decision{
		RequestID: id,
		Kind:      model.DecisionManualInput,
		Text:      text,
	})
	if !ok {
		b.reply(msg.Chat.ID, "That approval request already expired.")
		return
	}
	b.reply(msg.Chat.ID, "Posting your reply instead of the draft.")
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}
