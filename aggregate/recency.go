package aggregate

import "time"

// DefaultWindow is the trailing period a discussion must fall into to be
// notification-worthy.
const DefaultWindow = 24 * time.Hour

// Window is the recency predicate for one aggregation run. Now is captured
// once at run start and reused for every discussion, so the window is
// consistent across the whole walk.
type Window struct {
	Now  time.Time
	Span time.Duration
}

// Includes reports whether a discussion modified at t falls inside the
// window. The lower bound is inclusive: a discussion modified exactly
// Span before Now qualifies.
func (w Window) Includes(t time.Time) bool {
	return !t.Before(w.Now.Add(-w.Span))
}
