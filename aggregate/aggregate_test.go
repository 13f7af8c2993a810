package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"testing"
	"time"

	"moodle-notifier/pkg/digest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDirectory is an in-memory Directory with call counting and error
// injection.
type fakeDirectory struct {
	courses      []digest.Course
	users        map[int64][]digest.EnrolledUser
	forums       map[int64][]digest.Forum
	discussions  map[int64][]digest.Discussion
	messages     map[int64][]digest.Message
	messageCalls map[int64]int
	forumsErr    error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:        make(map[int64][]digest.EnrolledUser),
		forums:       make(map[int64][]digest.Forum),
		discussions:  make(map[int64][]digest.Discussion),
		messages:     make(map[int64][]digest.Message),
		messageCalls: make(map[int64]int),
	}
}

func (f *fakeDirectory) Courses(_ context.Context) ([]digest.Course, error) {
	return f.courses, nil
}

func (f *fakeDirectory) Forums(_ context.Context, courseID int64) ([]digest.Forum, error) {
	if f.forumsErr != nil {
		return nil, f.forumsErr
	}
	return f.forums[courseID], nil
}

func (f *fakeDirectory) Discussions(_ context.Context, forumID int64) ([]digest.Discussion, error) {
	return f.discussions[forumID], nil
}

func (f *fakeDirectory) EnrolledUsers(_ context.Context, courseID int64) ([]digest.EnrolledUser, error) {
	return f.users[courseID], nil
}

func (f *fakeDirectory) UnreadMessages(_ context.Context, userID int64) ([]digest.Message, error) {
	f.messageCalls[userID]++
	return f.messages[userID], nil
}

func TestWindowBoundary(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	w := Window{Now: now, Span: 24 * time.Hour}

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"one hour ago", now.Add(-time.Hour), true},
		{"exactly at now", now, true},
		{"exactly 24h before now", now.Add(-24 * time.Hour), true},
		{"one second past the window", now.Add(-24*time.Hour - time.Second), false},
		{"three days ago", now.Add(-72 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Includes(tt.t); got != tt.want {
				t.Errorf("Includes(%v) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestRunSingleCourseWithRecentDiscussion(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	dir := newFakeDirectory()
	dir.courses = []digest.Course{{ID: 2, FullName: "Intro"}}
	dir.users[2] = []digest.EnrolledUser{{ID: 5, Email: "a@x.com", FullName: "Ann"}}
	dir.forums[2] = []digest.Forum{{ID: 7, CourseID: 2, Type: "general"}}
	dir.discussions[7] = []digest.Discussion{
		{Author: "Bob", Subject: "Week 1 reading", Modified: now.Add(-time.Hour)},
	}

	res, err := New(dir, testLogger()).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("RunAt() error: %v", err)
	}

	activity := res.Activity[5]
	if len(activity) != 1 {
		t.Fatalf("got %d activity items for user 5, want 1", len(activity))
	}
	want := digest.ActivityItem{CourseID: 2, CourseName: "Intro", Subject: "Week 1 reading", Author: "Bob"}
	if activity[0] != want {
		t.Errorf("activity[0] = %+v, want %+v", activity[0], want)
	}

	if ident, ok := res.Identities[5]; !ok || ident.Email != "a@x.com" || ident.FullName != "Ann" {
		t.Errorf("identity = %+v, want Ann <a@x.com>", res.Identities[5])
	}
	if _, ok := res.Messages[5]; !ok {
		t.Error("user 5 missing from message-snapshot mapping")
	}
}

func TestRunStaleDiscussionExcluded(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	dir := newFakeDirectory()
	dir.courses = []digest.Course{{ID: 2, FullName: "Intro"}}
	dir.users[2] = []digest.EnrolledUser{{ID: 5, Email: "a@x.com", FullName: "Ann"}}
	dir.forums[2] = []digest.Forum{{ID: 7, CourseID: 2, Type: "general"}}
	dir.discussions[7] = []digest.Discussion{
		{Author: "Bob", Subject: "Old news", Modified: now.Add(-72 * time.Hour)},
	}

	res, err := New(dir, testLogger()).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("RunAt() error: %v", err)
	}

	if len(res.Activity[5]) != 0 {
		t.Errorf("got %d activity items, want 0 for stale discussion", len(res.Activity[5]))
	}
	// The fallback pass still captures the roster member.
	if _, ok := res.Identities[5]; !ok {
		t.Error("user 5 missing identity despite being on the roster")
	}
	if dir.messageCalls[5] != 1 {
		t.Errorf("message fetches for user 5 = %d, want 1", dir.messageCalls[5])
	}
}

func TestRunUserInTwoCourses(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	dir := newFakeDirectory()
	dir.courses = []digest.Course{
		{ID: 2, FullName: "Intro"},
		{ID: 3, FullName: "Advanced"},
	}
	// Same user on both rosters; the second roster carries stale identity data.
	dir.users[2] = []digest.EnrolledUser{{ID: 5, Email: "a@x.com", FullName: "Ann"}}
	dir.users[3] = []digest.EnrolledUser{{ID: 5, Email: "stale@x.com", FullName: "A. Nonymous"}}
	dir.forums[2] = []digest.Forum{{ID: 7, CourseID: 2, Type: "general"}}
	dir.forums[3] = []digest.Forum{{ID: 8, CourseID: 3, Type: "general"}}
	dir.discussions[7] = []digest.Discussion{
		{Author: "Bob", Subject: "intro topic", Modified: now.Add(-time.Hour)},
	}
	dir.discussions[8] = []digest.Discussion{
		{Author: "Cat", Subject: "advanced topic", Modified: now.Add(-2 * time.Hour)},
	}

	res, err := New(dir, testLogger()).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("RunAt() error: %v", err)
	}

	// First-seen identity wins, course-list order.
	if ident := res.Identities[5]; ident.Email != "a@x.com" || ident.FullName != "Ann" {
		t.Errorf("identity = %+v, want first-seen Ann <a@x.com>", ident)
	}

	// Message snapshot fetched exactly once despite two encounters.
	if dir.messageCalls[5] != 1 {
		t.Errorf("message fetches for user 5 = %d, want 1", dir.messageCalls[5])
	}

	// Activity from both courses accumulates in discovery order.
	activity := res.Activity[5]
	if len(activity) != 2 {
		t.Fatalf("got %d activity items, want 2", len(activity))
	}
	if activity[0].Subject != "intro topic" || activity[1].Subject != "advanced topic" {
		t.Errorf("activity order = [%q, %q], want [intro topic, advanced topic]",
			activity[0].Subject, activity[1].Subject)
	}
}

func TestRunRosterWideFanOut(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	dir := newFakeDirectory()
	dir.courses = []digest.Course{{ID: 2, FullName: "Intro"}}
	dir.users[2] = []digest.EnrolledUser{
		{ID: 5, Email: "a@x.com", FullName: "Ann"},
		{ID: 6, Email: "b@x.com", FullName: "Ben"},
		{ID: 7, Email: "c@x.com", FullName: "Cat"},
	}
	dir.forums[2] = []digest.Forum{{ID: 7, CourseID: 2, Type: "general"}}
	// Authored by Ann, but every roster member is notified.
	dir.discussions[7] = []digest.Discussion{
		{Author: "Ann", Subject: "hello", Modified: now.Add(-time.Minute)},
	}

	res, err := New(dir, testLogger()).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("RunAt() error: %v", err)
	}

	for _, userID := range []int64{5, 6, 7} {
		if len(res.Activity[userID]) != 1 {
			t.Errorf("user %d got %d activity items, want 1", userID, len(res.Activity[userID]))
		}
	}
}

func TestRunIdentityAndMessagesCoverSameUsers(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	dir := newFakeDirectory()
	dir.courses = []digest.Course{{ID: 2, FullName: "Intro"}, {ID: 3, FullName: "Advanced"}}
	dir.users[2] = []digest.EnrolledUser{
		{ID: 5, Email: "a@x.com", FullName: "Ann"},
		{ID: 6, Email: "b@x.com", FullName: "Ben"},
	}
	dir.users[3] = []digest.EnrolledUser{{ID: 9, Email: "d@x.com", FullName: "Dot"}}

	res, err := New(dir, testLogger()).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("RunAt() error: %v", err)
	}

	if len(res.Identities) != 3 {
		t.Errorf("got %d identities, want 3", len(res.Identities))
	}
	for userID := range res.Identities {
		if _, ok := res.Messages[userID]; !ok {
			t.Errorf("user %d present in identities but missing from messages", userID)
		}
	}
	for userID, calls := range dir.messageCalls {
		if calls != 1 {
			t.Errorf("message fetches for user %d = %d, want exactly 1", userID, calls)
		}
	}
}

func TestRunIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	build := func() *fakeDirectory {
		dir := newFakeDirectory()
		dir.courses = []digest.Course{{ID: 2, FullName: "Intro"}}
		dir.users[2] = []digest.EnrolledUser{{ID: 5, Email: "a@x.com", FullName: "Ann"}}
		dir.forums[2] = []digest.Forum{{ID: 7, CourseID: 2, Type: "general"}}
		dir.discussions[7] = []digest.Discussion{
			{Author: "Bob", Subject: "Week 1 reading", Modified: now.Add(-time.Hour)},
		}
		dir.messages[5] = []digest.Message{{ID: 11, From: "Bob", Subject: "hi"}}
		return dir
	}

	first, err := New(build(), testLogger()).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("first RunAt() error: %v", err)
	}
	second, err := New(build(), testLogger()).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("second RunAt() error: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("runs against unchanged state differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestRunDirectoryErrorIsFatal(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	dir := newFakeDirectory()
	dir.courses = []digest.Course{{ID: 2, FullName: "Intro"}}
	dir.users[2] = []digest.EnrolledUser{{ID: 5, Email: "a@x.com", FullName: "Ann"}}
	dir.forumsErr = errors.New("boom")

	res, err := New(dir, testLogger()).RunAt(context.Background(), now)
	if err == nil {
		t.Fatal("RunAt() error = nil, want fatal directory error")
	}
	if res != nil {
		t.Errorf("RunAt() result = %+v, want nil (partial results discarded)", res)
	}
}

func TestRunCustomWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	dir := newFakeDirectory()
	dir.courses = []digest.Course{{ID: 2, FullName: "Intro"}}
	dir.users[2] = []digest.EnrolledUser{{ID: 5, Email: "a@x.com", FullName: "Ann"}}
	dir.forums[2] = []digest.Forum{{ID: 7, CourseID: 2, Type: "general"}}
	dir.discussions[7] = []digest.Discussion{
		{Author: "Bob", Subject: "yesterday", Modified: now.Add(-30 * time.Hour)},
	}

	// 48h window picks up what the default 24h window would drop.
	res, err := New(dir, testLogger()).WithWindow(48*time.Hour).RunAt(context.Background(), now)
	if err != nil {
		t.Fatalf("RunAt() error: %v", err)
	}
	if len(res.Activity[5]) != 1 {
		t.Errorf("got %d activity items with 48h window, want 1", len(res.Activity[5]))
	}
}
