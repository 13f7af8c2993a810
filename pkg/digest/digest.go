// Package digest contains the core domain types for the Moodle digest notifier.
package digest

import "time"

// Course is one course visible to the service credential.
type Course struct {
	ID       int64
	FullName string
}

// Forum is a discussion venue scoped to one course.
type Forum struct {
	ID       int64
	CourseID int64
	Type     string // forum type tag as reported by the API (e.g. "news", "general")
}

// Discussion is a single topic thread inside a forum.
type Discussion struct {
	Modified time.Time // last-modified time reported by the API
	Author   string    // display name of the user who opened the discussion
	Subject  string
}

// EnrolledUser is one entry in a course's enrollment roster.
type EnrolledUser struct {
	ID       int64
	Email    string
	FullName string
}

// Message is one unread private message. The digest only reports how many
// there are; the fields are decoded so callers can log or inspect them.
type Message struct {
	Created time.Time
	From    string
	To      string
	Subject string
	ID      int64
}

// ActivityItem is one notification-worthy event: a discussion that changed
// within the recency window, fanned out to a course roster member.
type ActivityItem struct {
	CourseID   int64
	CourseName string
	Subject    string
	Author     string
}

// Identity is a user's (email, display name) pair as captured on first
// encounter during a run. Never overwritten within a run.
type Identity struct {
	Email    string
	FullName string
}

// Result holds the three per-user mappings built by one aggregation run.
// Activity sequences preserve discovery order. Every user present in
// Identities is also present in Messages.
type Result struct {
	Activity   map[int64][]ActivityItem
	Identities map[int64]Identity
	Messages   map[int64][]Message
}

// NewResult returns an empty aggregation result with all maps allocated.
func NewResult() *Result {
	return &Result{
		Activity:   make(map[int64][]ActivityItem),
		Identities: make(map[int64]Identity),
		Messages:   make(map[int64][]Message),
	}
}

// ForumEntry is one line of a digest: a qualifying discussion in one of the
// recipient's courses.
type ForumEntry struct {
	CourseName string
	Subject    string
	Author     string
}

// Payload is the composed digest for one recipient, ready for rendering
// and delivery.
type Payload struct {
	UserID      int64
	Name        string
	Email       string
	Entries     []ForumEntry
	Unread      int
	MessageLine string // empty when there are no unread messages
}
