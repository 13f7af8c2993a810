// Package aggregate walks courses, forums, and discussions to build the
// per-user digest mappings.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"moodle-notifier/pkg/digest"
)

// Directory answers the remote queries the engine needs. Any error it
// returns is terminal: the run aborts and partial results are discarded.
type Directory interface {
	Courses(ctx context.Context) ([]digest.Course, error)
	Forums(ctx context.Context, courseID int64) ([]digest.Forum, error)
	Discussions(ctx context.Context, forumID int64) ([]digest.Discussion, error)
	EnrolledUsers(ctx context.Context, courseID int64) ([]digest.EnrolledUser, error)
	UnreadMessages(ctx context.Context, userID int64) ([]digest.Message, error)
}

// Engine drives one read-and-aggregate pass over everything the service
// credential can see.
type Engine struct {
	dir    Directory
	logger *slog.Logger
	window time.Duration
}

// New creates a new aggregation engine with the default 24h recency window.
func New(dir Directory, logger *slog.Logger) *Engine {
	return &Engine{
		dir:    dir,
		logger: logger,
		window: DefaultWindow,
	}
}

// WithWindow overrides the recency window span.
func (e *Engine) WithWindow(span time.Duration) *Engine {
	if span > 0 {
		e.window = span
	}
	return e
}

// Run performs one aggregation pass and returns the three per-user
// mappings. The reference time for the recency window is captured once
// here and reused for every discussion.
//
// Every qualifying discussion fans out to the entire roster of its course,
// not just the discussion author. A user's identity and unread-message
// snapshot are captured on first encounter only, gated by a seen-set, and
// always together: users touched by no qualifying discussion are picked up
// in a per-course fallback pass so everyone on a roster ends up in the
// result.
func (e *Engine) Run(ctx context.Context) (*digest.Result, error) {
	window := Window{Now: time.Now(), Span: e.window}
	return e.run(ctx, window)
}

// RunAt is Run with an explicit reference time.
func (e *Engine) RunAt(ctx context.Context, now time.Time) (*digest.Result, error) {
	return e.run(ctx, Window{Now: now, Span: e.window})
}

func (e *Engine) run(ctx context.Context, window Window) (*digest.Result, error) {
	courses, err := e.dir.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}

	e.logger.Info("Aggregation run starting",
		"courses", len(courses),
		"window", window.Span.String(),
		"reference_time", window.Now.Format(time.RFC3339))

	res := digest.NewResult()
	seen := make(map[int64]bool) // users whose identity and messages are already captured
	var qualifying int

	for _, course := range courses {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		users, err := e.dir.EnrolledUsers(ctx, course.ID)
		if err != nil {
			return nil, fmt.Errorf("list enrolled users for course %d: %w", course.ID, err)
		}

		forums, err := e.dir.Forums(ctx, course.ID)
		if err != nil {
			return nil, fmt.Errorf("list forums for course %d: %w", course.ID, err)
		}

		e.logger.Debug("Walking course",
			"course_id", course.ID,
			"course_name", course.FullName,
			"roster_size", len(users),
			"forums", len(forums))

		for _, forum := range forums {
			discussions, err := e.dir.Discussions(ctx, forum.ID)
			if err != nil {
				return nil, fmt.Errorf("list discussions for forum %d: %w", forum.ID, err)
			}

			for _, disc := range discussions {
				if !window.Includes(disc.Modified) {
					continue
				}
				qualifying++

				item := digest.ActivityItem{
					CourseID:   forum.CourseID,
					CourseName: course.FullName,
					Subject:    disc.Subject,
					Author:     disc.Author,
				}

				for _, user := range users {
					res.Activity[user.ID] = append(res.Activity[user.ID], item)
					if err := e.capture(ctx, res, seen, user); err != nil {
						return nil, err
					}
				}
			}
		}

		// Roster members untouched by any qualifying discussion still get
		// their identity and message snapshot recorded.
		for _, user := range users {
			if err := e.capture(ctx, res, seen, user); err != nil {
				return nil, err
			}
		}
	}

	e.logger.Info("Aggregation run completed",
		"users", len(res.Identities),
		"qualifying_discussions", qualifying)

	return res, nil
}

// capture records a user's identity and fetches their unread-message
// snapshot, at most once per run. Identity and snapshot are written
// together so the two mappings always cover the same users.
func (e *Engine) capture(ctx context.Context, res *digest.Result, seen map[int64]bool, user digest.EnrolledUser) error {
	if seen[user.ID] {
		return nil
	}
	seen[user.ID] = true

	messages, err := e.dir.UnreadMessages(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list unread messages for user %d: %w", user.ID, err)
	}

	res.Identities[user.ID] = digest.Identity{Email: user.Email, FullName: user.FullName}
	res.Messages[user.ID] = messages

	e.logger.Debug("User captured",
		"user_id", user.ID,
		"unread_messages", len(messages))

	return nil
}
