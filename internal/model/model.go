// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"time"
)

// ErrTargetUnreachable marks a delivery failure caused by an invalid or
// unreachable chat. Retrying such a delivery will not help.
var ErrTargetUnreachable = errors.New("delivery target unreachable")

// ErrMessageRejected marks a notification the delivery channel refused
// because of its content. Retrying the same message will not help.
var ErrMessageRejected = errors.New("message rejected")

// Entry is a normalized feed item. Values are never modified after
// normalization.
type Entry struct {
	ID          string
	Title       string
	Link        string
	Image       string
	Category    string
	Uploader    string
	Size        string
	PublishedAt time.Time
}

// ChangeKind classifies an entry that differs from what was seen before.
type ChangeKind string

// Supported change kinds. Unchanged entries are never represented.
const (
	ChangeNew    ChangeKind = "new"
	ChangeEdited ChangeKind = "edited"
)

// Change is an entry detected as new or edited during a single poll.
type Change struct {
	Entry Entry
	Kind  ChangeKind
}

// Subscriber is a chat that receives notifications for the monitored feed.
// An empty Filter means the default pattern applies.
type Subscriber struct {
	ChatID    int64
	Enabled   bool
	Filter    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Notification is the message handed to the delivery sink.
type Notification struct {
	Title       string
	Link        string
	Image       string
	Category    string
	Size        string
	Uploader    string
	PublishedAt time.Time
	Edited      bool
}

// NewNotification builds the notification for a detected change.
func NewNotification(c Change) Notification {
	return Notification{
		Title:       c.Entry.Title,
		Link:        c.Entry.Link,
		Image:       c.Entry.Image,
		Category:    c.Entry.Category,
		Size:        c.Entry.Size,
		Uploader:    c.Entry.Uploader,
		PublishedAt: c.Entry.PublishedAt,
		Edited:      c.Kind == ChangeEdited,
	}
}
