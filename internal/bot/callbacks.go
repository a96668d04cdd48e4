package bot

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"engagepilot/internal/model"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	data := cb.Data
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	parts := strings.SplitN(data, ":", 2)
	if len(parts) != 2 {
		return
	}
	action, arg := parts[0], parts[1]

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case "approve":
		b.resolveDecision(chatID, arg, model.DecisionAccepted, "Accepted, posting the draft.")
	case "regen":
		b.resolveDecision(chatID, arg, model.DecisionRegenerated, "Requesting a fresh draft...")
	case "skip":
		b.resolveDecision(chatID, arg, model.DecisionSkipped, "Skipped, back to the feed.")
	case "rmrule":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		b.removeRule(ctx, chatID, id)
	case "rmsource":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return
		}
		b.removeSource(ctx, chatID, id)
	}
}

// resolveDecision forwards an approval keyboard press to the workflow.
func (b *Bot) resolveDecision(chatID int64, requestID string, kind model.DecisionKind, confirmation string) {
	b.mu.Lock()
	if b.pendingID == requestID {
		b.pendingID = ""
	}
	b.mu.Unlock()

	ok := b.decisions.Resolve(model.Decision{RequestID: requestID, Kind: kind})
	if !ok {
		b.reply(chatID, "That approval request already expired.")
		return
	}
	b.reply(chatID, confirmation)
}
