package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feed_notifier/internal/model"
)

const (
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
	cmdResetFilter = "resetfilter"
)

// statusKeyboard offers the actions that make sense for the subscriber's
// current state.
func statusKeyboard(sub *model.Subscriber) tgbotapi.InlineKeyboardMarkup {
	if sub == nil || !sub.Enabled {
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Subscribe", cmdSubscribe+":"),
			),
		)
	}
	row := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Unsubscribe", cmdUnsubscribe+":"),
	}
	if sub.Filter != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Reset filter", cmdResetFilter+":"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, _, err := ParseCallbackData(cb.Data)
	if err != nil {
		b.log.Debug("ignore callback", "error", err)
		return
	}

	b.log.Info("callback",
		"action", action,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cmdSubscribe:
		b.handleSubscribe(ctx, chatID)
	case cmdUnsubscribe:
		b.handleUnsubscribe(ctx, chatID)
	case cmdResetFilter:
		b.handleResetFilter(ctx, chatID)
	}
}
