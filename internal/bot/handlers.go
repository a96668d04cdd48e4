package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"engagepilot/internal/model"
)

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "status":
		b.handleStatus(chatID)
	case "pause":
		b.engine.Pause()
		b.reply(chatID, "Engine paused. In-flight work will finish; no new cycles start.")
	case "resume":
		b.engine.Resume()
		b.reply(chatID, "Engine resumed.")
	case "focus":
		b.handleAddRule(ctx, chatID, args, model.RuleFocus)
	case "skip":
		b.handleAddRule(ctx, chatID, args, model.RuleSkip)
	case "priority":
		b.handleAddRule(ctx, chatID, args, model.RulePriority)
	case "lowpriority":
		b.handleAddRule(ctx, chatID, args, model.RuleLowPriority)
	case "rules":
		b.handleRules(ctx, chatID)
	case "rmrule":
		b.handleRmRule(ctx, chatID, args)
	case "addsource":
		b.handleAddSource(ctx, chatID, args)
	case "sources":
		b.handleSources(ctx, chatID)
	case "rmsource":
		b.handleRmSource(ctx, chatID, args)
	case "tone":
		b.handleTone(chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID,
		"EngagePilot watches configured post feeds, scores candidates, and asks you to approve drafted replies.\n\n"+
			"Use /help to see the available commands.")
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Commands:
/status - engine state and pacing counters
/pause - stop starting new cycles
/resume - resume the loop

/focus <keyword> - add a focus keyword
/skip <keyword> - add a skip keyword (hard block)
/priority <handle> - add a priority user
/lowpriority <handle> - add a low-priority user
/rules - list filter rules
/rmrule <id> - remove a rule

/addsource <name> <url> - add a capture feed
/sources - list capture feeds
/rmsource <id> - remove a capture feed

/tone [style] - show or change the reply drafting tone

When a draft reply card appears, press a button or just send
your own text to post it instead of the draft.`)
}

func (b *Bot) handleStatus(chatID int64) {
	session, daily := b.status.Counters()
	b.reply(chatID, FormatStatus(b.engine.IsRunning(), session, daily,
		b.cfg.Safety.MaxDailyInteractions, b.engine.ProcessedCount()))
}

func (b *Bot) handleTone(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, fmt.Sprintf("Current reply tone: %s", b.engine.Tone()))
		return
	}
	b.engine.SetTone(args)
	b.reply(chatID, fmt.Sprintf("Reply tone set to: %s", args))
}

func (b *Bot) handleAddRule(ctx context.Context, chatID int64, args string, kind model.RuleKind) {
	value, err := ParseRuleValue(args, kind)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	rule := model.FilterRule{Kind: kind, Value: value}
	if err := b.store.CreateRule(ctx, &rule); err != nil {
		b.log.Error("create rule", "kind", kind, "error", err)
		b.reply(chatID, "Failed to save the rule.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Added %s rule R%d: %s", ruleLabel(kind), rule.ID, rule.Value))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64) {
	rules, err := b.store.ListRules(ctx)
	if err != nil {
		b.log.Error("list rules", "error", err)
		b.reply(chatID, "Failed to load rules.")
		return
	}
	b.reply(chatID, FormatRules(rules))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <id>")
		return
	}
	b.removeRule(ctx, chatID, id)
}

func (b *Bot) removeRule(ctx context.Context, chatID int64, id int64) {
	if err := b.store.DeleteRule(ctx, id); err != nil {
		b.log.Error("delete rule", "id", id, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to remove rule R%d.", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed rule R%d.", id))
}

func (b *Bot) handleAddSource(ctx context.Context, chatID int64, args string) {
	name, url, err := ParseSourceCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	src := model.Source{Name: name, URL: url, IsActive: true}
	if err := b.store.CreateSource(ctx, &src); err != nil {
		b.log.Error("create source", "url", url, "error", err)
		b.reply(chatID, "Failed to save the source.")
		return
	}
	b.reply(chatID, fmt.Sprintf("Added source #%d %s", src.ID, src.Name))
}

func (b *Bot) handleSources(ctx context.Context, chatID int64) {
	sources, err := b.store.ListSources(ctx)
	if err != nil {
		b.log.Error("list sources", "error", err)
		b.reply(chatID, "Failed to load sources.")
		return
	}

	if len(sources) == 0 {
		b.reply(chatID, "No capture sources yet. Use /addsource <name> <url> to add one.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatSources(sources))
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, src := range sources {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Remove #%d %s", src.ID, src.Name),
				fmt.Sprintf("rmsource:%d", src.ID),
			),
		))
	}
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send source list", "error", err)
	}
}

func (b *Bot) handleRmSource(ctx context.Context, chatID int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.reply(chatID, "Usage: /rmsource <id>")
		return
	}
	b.removeSource(ctx, chatID, id)
}

func (b *Bot) removeSource(ctx context.Context, chatID int64, id int64) {
	if err := b.store.DeleteSource(ctx, id); err != nil {
		b.log.Error("delete source", "id", id, "error", err)
		b.reply(chatID, fmt.Sprintf("Failed to remove source #%d.", id))
		return
	}
	b.reply(chatID, fmt.Sprintf("Removed source #%d.", id))
}
