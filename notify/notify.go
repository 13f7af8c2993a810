// Package notify drives one digest cycle: aggregate, compose, dispatch.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"moodle-notifier/pkg/digest"
)

// Aggregator produces the per-user digest mappings for one run.
type Aggregator interface {
	Run(ctx context.Context) (*digest.Result, error)
}

// Emailer delivers one composed digest to its recipient.
type Emailer interface {
	SendDigest(ctx context.Context, p *digest.Payload) error
}

// Runner performs full digest cycles.
type Runner struct {
	aggregator Aggregator
	emailer    Emailer
	logger     *slog.Logger
	exclude    map[int64]bool
}

// New creates a new digest runner. Users in excludeIDs never receive a
// digest even when they have activity or unread messages.
func New(aggregator Aggregator, emailer Emailer, logger *slog.Logger, excludeIDs []int64) *Runner {
	exclude := make(map[int64]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		exclude[id] = true
	}
	return &Runner{
		aggregator: aggregator,
		emailer:    emailer,
		logger:     logger,
		exclude:    exclude,
	}
}

// RunOnce performs one digest cycle. Aggregation is all-or-nothing: any
// remote failure aborts the run before a single email goes out. Delivery
// is per-recipient: a rejected address is logged and skipped, and the
// cycle continues with the remaining recipients.
func (r *Runner) RunOnce(ctx context.Context) error {
	res, err := r.aggregator.Run(ctx)
	if err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	// Recipients go out in ascending user-ID order so runs are reproducible.
	userIDs := make([]int64, 0, len(res.Identities))
	for userID := range res.Identities {
		userIDs = append(userIDs, userID)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	var sent, skipped, failed int
	for _, userID := range userIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if r.exclude[userID] {
			r.logger.Debug("Skipping excluded user", "user_id", userID)
			skipped++
			continue
		}

		payload := digest.Compose(userID, res)
		if payload == nil {
			skipped++
			continue
		}

		if err := r.emailer.SendDigest(ctx, payload); err != nil {
			r.logger.Warn("Digest delivery failed",
				"user_id", userID,
				"email", payload.Email,
				"error", err)
			failed++
			continue
		}
		sent++
	}

	r.logger.Info("Digest cycle completed",
		"recipients", len(userIDs),
		"sent", sent,
		"skipped", skipped,
		"failed", failed)

	return nil
}
