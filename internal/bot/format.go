package bot

import (
	"fmt"
	"html"
	"strings"

	"feed_notifier/internal/config"
	"feed_notifier/internal/model"
)

const (
	maxTitleLen   = 256
	truncatedLen  = 250
	timeLayout    = "2006-01-02 15:04 UTC"
	statusActive  = "active"
	statusPaused  = "paused"
	noSubscriber  = "You are not subscribed. Use /subscribe to start receiving notifications."
	defaultPrefix = "default"
)

// TruncateTitle shortens titles longer than 256 characters to 250
// characters followed by "...".
func TruncateTitle(title string) string {
	r := []rune(title)
	if len(r) <= maxTitleLen {
		return title
	}
	return string(r[:truncatedLen]) + "..."
}

// FormatNotification renders a notification as Telegram HTML.
func FormatNotification(feedName string, n model.Notification) string {
	var b strings.Builder

	title := html.EscapeString(TruncateTitle(n.Title))
	if n.Link != "" {
		fmt.Fprintf(&b, "<b><a href=\"%s\">%s</a></b>\n", html.EscapeString(n.Link), title)
	} else {
		fmt.Fprintf(&b, "<b>%s</b>\n", title)
	}

	fmt.Fprintf(&b, "\nUploader: %s\n", html.EscapeString(orDefault(n.Uploader, "Unknown")))
	fmt.Fprintf(&b, "Category: %s\n", html.EscapeString(orDefault(n.Category, "-")))
	fmt.Fprintf(&b, "Size: %s\n", html.EscapeString(orDefault(n.Size, "Unknown")))
	if !n.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "Published: %s\n", n.PublishedAt.UTC().Format(timeLayout))
	}

	footer := feedName
	if n.Edited {
		footer = "📝 Edited · " + feedName
	}
	fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(footer))
	return b.String()
}

// FormatStatus describes a subscriber and the monitored feed.
func FormatStatus(feed config.Feed, sub *model.Subscriber) string {
	var b strings.Builder
	if feed.URL == "" {
		b.WriteString("Feed monitor: not configured\n")
	} else {
		fmt.Fprintf(&b, "Feed: %s\n", feed.Name)
		fmt.Fprintf(&b, "Checked every %s\n", feed.PollInterval)
	}

	if sub == nil {
		b.WriteString("\n")
		b.WriteString(noSubscriber)
		return b.String()
	}

	status := statusActive
	if !sub.Enabled {
		status = statusPaused
	}
	fmt.Fprintf(&b, "\nSubscription: %s\n", status)
	if sub.Filter == "" {
		fmt.Fprintf(&b, "Filter: %s (%s)\n", feed.DefaultFilter, defaultPrefix)
	} else {
		fmt.Fprintf(&b, "Filter: %s\n", sub.Filter)
	}
	fmt.Fprintf(&b, "Since: %s", sub.CreatedAt.UTC().Format(timeLayout))
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
