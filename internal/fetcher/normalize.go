package fetcher

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"feed_notifier/internal/model"
)

// Defaults applied when an item lacks the corresponding field.
const (
	DefaultCategory = "BDMV"
	UnknownTitle    = "Unknown Title"
	Unknown         = "Unknown"
)

var (
	imgSrcRe     = regexp.MustCompile(`(?i)src=['"]([^'"]+\.(?:jpg|jpeg|png|gif|webp))`)
	attachmentRe = regexp.MustCompile(`(?i)^attachments/[^\s'"<>]+\.(?:jpg|jpeg|png|gif|webp)$`)
	looseImageRe = regexp.MustCompile(`(?i)(?:https?:)?//[^\s'"<>]+?\.(?:jpg|jpeg|png|gif|webp)|attachments/[^\s'"<>]+?\.(?:jpg|jpeg|png|gif|webp)`)
	parenNameRe  = regexp.MustCompile(`\(([^)]+)\)`)
	localPartRe  = regexp.MustCompile(`^([^@]+)@`)
	titleSizeRe  = regexp.MustCompile(`(?i)\[(\d+(?:\.\d+)?\s*[KMG]i?B)\]`)
)

// Normalizer maps raw feed items to model.Entry values.
// Its zero value is usable; relative attachment images are then dropped.
type Normalizer struct {
	origin          string
	defaultCategory string
}

// NewNormalizer creates a Normalizer for the feed at feedURL. Feed-local
// attachment paths are resolved against the feed's scheme and host.
func NewNormalizer(feedURL, defaultCategory string) *Normalizer {
	n := &Normalizer{defaultCategory: defaultCategory}
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		scheme := u.Scheme
		if scheme == "" {
			scheme = "https"
		}
		n.origin = scheme + "://" + u.Host
	}
	return n
}

// Normalize converts a raw item. It never fails: missing fields fall back to
// defaults, and now is used when the item has no usable date.
func (n *Normalizer) Normalize(item *gofeed.Item, now time.Time) model.Entry {
	rawTitle := item.Title
	title := StripMarkup(rawTitle)
	if title == "" {
		title = UnknownTitle
	}

	description := item.Description
	if strings.TrimSpace(description) == "" {
		description = item.Content
	}

	return model.Entry{
		ID:          itemID(item, title),
		Title:       title,
		Link:        strings.TrimSpace(item.Link),
		Image:       n.ExtractImage(description),
		Category:    n.category(item),
		Uploader:    ExtractUploader(authorString(item)),
		Size:        itemSize(item, rawTitle),
		PublishedAt: publishedAt(item, now),
	}
}

func itemID(item *gofeed.Item, title string) string {
	if id := strings.TrimSpace(item.GUID); id != "" {
		return id
	}
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	return title
}

func (n *Normalizer) category(item *gofeed.Item) string {
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	if n.defaultCategory != "" {
		return n.defaultCategory
	}
	return DefaultCategory
}

// ExtractImage returns the first usable image URL in a description, or "".
// Relative paths other than feed-local attachments are skipped.
func (n *Normalizer) ExtractImage(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}

	for _, m := range imgSrcRe.FindAllStringSubmatch(description, -1) {
		if u, ok := n.resolveImage(m[1]); ok {
			return u
		}
	}

	if m := looseImageRe.FindString(description); m != "" {
		if u, ok := n.resolveImage(m); ok {
			return u
		}
	}
	return ""
}

func (n *Normalizer) resolveImage(raw string) (string, bool) {
	switch {
	case attachmentRe.MatchString(raw):
		if n.origin == "" {
			return "", false
		}
		return n.origin + "/" + raw, true
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw, true
	case strings.HasPrefix(raw, "http"):
		return raw, true
	}
	return "", false
}

// authorString rebuilds an "email (name)" author so ExtractUploader can
// prefer the display name.
func authorString(item *gofeed.Item) string {
	p := item.Author
	if p == nil && len(item.Authors) > 0 {
		p = item.Authors[0]
	}
	if p == nil {
		return ""
	}
	switch {
	case p.Name != "" && p.Email != "":
		return p.Email + " (" + p.Name + ")"
	case p.Name != "":
		return p.Name
	default:
		return p.Email
	}
}

// ExtractUploader derives a display name from a free-form author field.
func ExtractUploader(author string) string {
	cleaned := StripMarkup(author)
	if m := parenNameRe.FindStringSubmatch(cleaned); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	if m := localPartRe.FindStringSubmatch(cleaned); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	if cleaned == "" {
		return Unknown
	}
	return cleaned
}

func itemSize(item *gofeed.Item, rawTitle string) string {
	for _, enc := range item.Enclosures {
		if enc == nil {
			continue
		}
		if n, err := strconv.ParseUint(strings.TrimSpace(enc.Length), 10, 64); err == nil && n > 0 {
			return humanize.IBytes(n)
		}
	}
	return SizeFromTitle(rawTitle)
}

// SizeFromTitle extracts a bracketed size token such as "[45.3GiB]".
func SizeFromTitle(title string) string {
	if m := titleSizeRe.FindStringSubmatch(title); m != nil {
		return m[1]
	}
	return Unknown
}

func publishedAt(item *gofeed.Item, now time.Time) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return now
}

// StripMarkup removes HTML tags and decodes entities.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}

	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
