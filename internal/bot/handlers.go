package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feed_notifier/internal/filter"
	"feed_notifier/internal/model"
	"feed_notifier/internal/storage"
)

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	created, err := b.subscribe(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	greeting := "Welcome back! Notifications are enabled again."
	if created {
		greeting = fmt.Sprintf("Welcome! This chat now receives new and edited releases from %s.", b.cfg.Feed.Name)
	}
	b.reply(chatID, greeting+`

Every title is matched against your filter (a case-insensitive regular expression).
Use /filter <regex> to narrow it down, for example /filter 1080p.

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Subscription:
/subscribe - receive notifications in this chat
/unsubscribe - stop notifications
/status - show subscription and filter

Filter:
/filter - show the current filter
/filter <regex> - only notify for matching titles (case-insensitive)
/resetfilter - go back to the default filter

Feed:
/latest [n] - preview the newest n entries (1-10, default 3)`)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64) {
	created, err := b.subscribe(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if created {
		b.reply(chatID, "Subscribed. New releases will be posted here.")
		return
	}
	b.reply(chatID, "Subscription enabled.")
}

// subscribe enables chatID, creating the subscriber when needed. It reports
// whether a new subscriber was created.
func (b *Bot) subscribe(ctx context.Context, chatID int64) (bool, error) {
	err := b.store.SetEnabled(ctx, chatID, true)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}

	sub := &model.Subscriber{ChatID: chatID, Enabled: true}
	if err := b.store.UpsertSubscriber(ctx, sub); err != nil {
		return false, err
	}
	b.log.Info("subscriber added", "chat_id", chatID)
	return true, nil
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64) {
	err := b.store.SetEnabled(ctx, chatID, false)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, noSubscriber)
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	default:
		b.log.Info("subscriber paused", "chat_id", chatID)
		b.reply(chatID, "Unsubscribed. Use /subscribe to resume.")
	}
}

func (b *Bot) handleFilter(ctx context.Context, chatID int64, args string) {
	if args == "" {
		sub, err := b.store.GetSubscriber(ctx, chatID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			b.reply(chatID, noSubscriber)
		case err != nil:
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
		case sub.Filter == "":
			b.reply(chatID, fmt.Sprintf("Current filter: %s (default)\nUsage: /filter <regex>", b.cfg.Feed.DefaultFilter))
		default:
			b.reply(chatID, fmt.Sprintf("Current filter: %s\nUsage: /filter <regex>", sub.Filter))
		}
		return
	}

	if err := filter.ValidateRegex(args); err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
		return
	}

	err := b.store.SetFilter(ctx, chatID, args)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, noSubscriber)
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	default:
		b.reply(chatID, fmt.Sprintf("Filter set to: %s", args))
	}
}

func (b *Bot) handleResetFilter(ctx context.Context, chatID int64) {
	err := b.store.SetFilter(ctx, chatID, "")
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, noSubscriber)
	case err != nil:
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
	default:
		b.reply(chatID, fmt.Sprintf("Filter reset to default: %s", b.cfg.Feed.DefaultFilter))
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	sub, err := b.store.GetSubscriber(ctx, chatID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatStatus(b.cfg.Feed, sub))
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = statusKeyboard(sub)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send status", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleLatest(ctx context.Context, chatID int64, args string) {
	n, err := ParseLatestArg(args)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /latest [n]\n%v", err))
		return
	}
	if b.entries == nil || !b.cfg.FeedEnabled() {
		b.reply(chatID, "No feed is configured.")
		return
	}

	entries, err := b.entries.FetchEntries(ctx, b.cfg.Feed.URL)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}
	if len(entries) == 0 {
		b.reply(chatID, "The feed has no entries.")
		return
	}

	for _, e := range entries[:min(n, len(entries))] {
		preview := model.NewNotification(model.Change{Entry: e, Kind: model.ChangeNew})
		if err := b.Deliver(ctx, chatID, preview); err != nil {
			b.log.Error("send preview", "chat_id", chatID, "entry_id", e.ID, "error", err)
			return
		}
	}
}
