// Package bot is the Telegram side of the notifier: it delivers feed
// notifications and serves the subscriber commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feed_notifier/internal/config"
	"feed_notifier/internal/model"
	"feed_notifier/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// EntrySource provides the current entries of the monitored feed.
type EntrySource interface {
	FetchEntries(ctx context.Context, url string) ([]model.Entry, error)
}

// Bot is the Telegram bot that handles subscriber commands and sends
// notifications.
type Bot struct {
	api     telegramAPI
	store   storage.Storage
	cfg     *config.Config
	entries EntrySource
	log     *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, config and
// entry source. entries may be nil when no feed is configured.
func New(token string, store storage.Storage, cfg *config.Config, entries EntrySource, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:     api,
		store:   store,
		cfg:     cfg,
		entries: entries,
		log:     log,
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
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// Deliver sends a notification to chatID. Notifications with an image are
// sent as a photo with caption; a rejected photo falls back to text.
// Errors caused by a chat that cannot receive messages wrap
// model.ErrTargetUnreachable, content refused by Telegram wraps
// model.ErrMessageRejected.
func (b *Bot) Deliver(_ context.Context, chatID int64, n model.Notification) error {
	text := FormatNotification(b.cfg.Feed.Name, n)

	if n.Image != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(n.Image))
		photo.Caption = text
		photo.ParseMode = tgbotapi.ModeHTML
		_, err := b.api.Send(photo)
		if err == nil {
			return nil
		}
		if err = classify(err); !errors.Is(err, model.ErrMessageRejected) {
			return err
		}
		b.log.Debug("photo rejected, sending text", "chat_id", chatID, "image", n.Image, "error", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// Bad Request descriptions that mean the chat itself cannot be reached.
var unreachableDescriptions = []string{
	"chat not found",
	"user not found",
	"user is deactivated",
	"bot was kicked",
	"bot was blocked",
	"bot is not a member",
	"group chat was upgraded",
	"have no rights to send",
	"not enough rights to send",
	"peer_id_invalid",
	"chat_write_forbidden",
}

// classify marks errors that retrying cannot fix. 403 and chat-level 400s
// are unreachable targets, other 400s are rejected content. Rate limits
// (429), server and network failures stay transient.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("send message: %w", err)
	}

	switch apiErr.Code {
	case http.StatusForbidden:
		return fmt.Errorf("send message: %w: %w", model.ErrTargetUnreachable, err)
	case http.StatusBadRequest:
		desc := strings.ToLower(apiErr.Message)
		if slices.ContainsFunc(unreachableDescriptions, func(s string) bool { return strings.Contains(desc, s) }) {
			return fmt.Errorf("send message: %w: %w", model.ErrTargetUnreachable, err)
		}
		return fmt.Errorf("send message: %w: %w", model.ErrMessageRejected, err)
	default:
		return fmt.Errorf("send message: %w", err)
	}
}

// SendMessage sends a plain text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(chatID)
	case cmdSubscribe:
		b.handleSubscribe(ctx, chatID)
	case cmdUnsubscribe:
		b.handleUnsubscribe(ctx, chatID)
	case "filter":
		b.handleFilter(ctx, chatID, args)
	case cmdResetFilter:
		b.handleResetFilter(ctx, chatID)
	case "status":
		b.handleStatus(ctx, chatID)
	case "latest":
		b.handleLatest(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
