package producer

import (
	"context"
	"errors"
	"testing"
	"time"

	"vrtq/internal/jobqueue"
	logx "vrtq/pkg/logx"
)

func newService(t *testing.T, cfg Config) (*Service, *jobqueue.Queue) {
	t.Helper()
	q, err := jobqueue.New(3)
	if err != nil {
		t.Fatalf("jobqueue.New: %v", err)
	}
	s, err := New(cfg, q, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, q
}

type dupSink struct{}

func (dupSink) Insert(jobqueue.Descriptor) error { return jobqueue.ErrDuplicateJob }

func TestSubmit(t *testing.T) {
	t.Parallel()
	s, q := newService(t, Config{})
	if err := s.Submit("a", 2, 5); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Submit("  ", 1, 1); err == nil {
		t.Fatal("expected error for empty name")
	}
	if q.Len() != 1 {
		t.Fatalf("pending = %d, want 1", q.Len())
	}
	snap := q.Snapshot()
	if snap[0].Name != "a" || snap[0].Priority != 2 || snap[0].VRT != 5 || snap[0].EnqueuedAt.IsZero() {
		t.Fatalf("queued = %+v", snap[0])
	}
	if got := s.Snapshot().Submitted; got != 1 {
		t.Fatalf("Submitted = %d, want 1", got)
	}
}

func TestSubmitDuplicateCounted(t *testing.T) {
	t.Parallel()
	s, err := New(Config{}, dupSink{}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Submit("x", 1, 1); !errors.Is(err, jobqueue.ErrDuplicateJob) {
		t.Fatalf("err = %v, want ErrDuplicateJob", err)
	}
	snap := s.Snapshot()
	if snap.Duplicates != 1 || snap.Submitted != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestFeedsLifecycle(t *testing.T) {
	t.Parallel()
	s, q := newService(t, Config{Feeds: []Feed{{Name: "backup", Schedule: "@every 1h", Priority: 2, VRT: 6}}})

	if err := s.AddFeed(Feed{Name: "report", Schedule: "nope"}); err == nil {
		t.Fatal("expected invalid schedule error")
	}
	if err := s.AddFeed(Feed{Name: "report", Schedule: "*/10 * * * *", Priority: 1, VRT: 2}); err != nil {
		t.Fatalf("AddFeed: %v", err)
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())

	feeds := s.Feeds()
	if len(feeds) != 2 || feeds[0].Name != "backup" || feeds[1].Name != "report" {
		t.Fatalf("feeds = %+v", feeds)
	}
	for _, f := range feeds {
		if f.Next.IsZero() {
			t.Fatalf("feed %s has no next run", f.Name)
		}
	}

	s.mu.Lock()
	e := s.feeds["backup"]
	s.mu.Unlock()
	s.fire(e)
	s.fire(e)
	if q.Len() != 2 {
		t.Fatalf("pending = %d, want 2", q.Len())
	}
	if names := []string{q.Snapshot()[0].Name, q.Snapshot()[1].Name}; names[0] != "backup-1" || names[1] != "backup-2" {
		t.Fatalf("queued = %v, want [backup-1 backup-2]", names)
	}

	if !s.RemoveFeed("report") {
		t.Fatal("RemoveFeed(report) = false")
	}
	if s.RemoveFeed("report") {
		t.Fatal("second RemoveFeed(report) = true")
	}
	if got := len(s.Feeds()); got != 1 {
		t.Fatalf("feeds = %d, want 1", got)
	}
}

func TestApplyReplacesFeeds(t *testing.T) {
	t.Parallel()
	s, _ := newService(t, Config{Feeds: []Feed{{Name: "a", Schedule: "1m"}}})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	err := s.Apply(Config{Feeds: []Feed{{Name: "b", Schedule: "5m"}, {Name: "b", Schedule: "6m"}}})
	if err == nil {
		t.Fatal("expected error for duplicate feed names")
	}
	if feeds := s.Feeds(); len(feeds) != 1 || feeds[0].Name != "a" {
		t.Fatalf("failed Apply changed feeds: %+v", feeds)
	}

	if err := s.Apply(Config{Timezone: "UTC", Feeds: []Feed{{Name: "b", Schedule: "5m"}}}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	feeds := s.Feeds()
	if len(feeds) != 1 || feeds[0].Name != "b" || feeds[0].Kind != ScheduleInterval {
		t.Fatalf("feeds = %+v", feeds)
	}
	if until := time.Until(feeds[0].Next); until <= 0 || until > 5*time.Minute+time.Second {
		t.Fatalf("next run in %v, want within 5m", until)
	}
	if tz := s.Snapshot().Timezone; tz != "UTC" {
		t.Fatalf("Timezone = %s, want UTC", tz)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		feeds   []Feed
		wantErr bool
	}{
		{"empty", nil, false},
		{"interval and cron", []Feed{{Name: "a", Schedule: "30s"}, {Name: "b", Schedule: "0 */5 * * * *"}}, false},
		{"bad cron", []Feed{{Name: "a", Schedule: "61 * * * *"}}, true},
		{"duplicate", []Feed{{Name: "a", Schedule: "1m"}, {Name: "a", Schedule: "2m"}}, true},
		{"no name", []Feed{{Schedule: "1m"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(Config{Feeds: tt.feeds})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyKeepsFeedCounters(t *testing.T) {
	t.Parallel()
	cfg := Config{Feeds: []Feed{{Name: "f", Schedule: "@every 1h", Priority: 1, VRT: 2}}}
	s, q := newService(t, cfg)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	entry := func() *feedEntry {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.feeds["f"]
	}
	s.fire(entry())
	s.fire(entry())
	before := entry()

	if err := s.Apply(cfg); err != nil {
		t.Fatalf("Apply identical: %v", err)
	}
	after := entry()
	if after != before || after.entryID != before.entryID {
		t.Fatalf("identical Apply re-registered the feed (entry %d -> %d)", before.entryID, after.entryID)
	}
	if got := s.Feeds()[0].Fired; got != 2 {
		t.Fatalf("Fired = %d, want 2", got)
	}

	changed := Config{Feeds: []Feed{{Name: "f", Schedule: "@every 1h", Priority: 1, VRT: 5}}}
	if err := s.Apply(changed); err != nil {
		t.Fatalf("Apply changed: %v", err)
	}
	s.fire(entry())

	changed.Timezone = "UTC"
	if err := s.Apply(changed); err != nil {
		t.Fatalf("Apply timezone: %v", err)
	}
	s.fire(entry())

	if got := s.Feeds()[0].Fired; got != 4 {
		t.Fatalf("Fired = %d, want 4", got)
	}
	want := map[string]bool{"f-1": true, "f-2": true, "f-3": true, "f-4": true}
	snap := q.Snapshot()
	if len(snap) != len(want) {
		t.Fatalf("queued %d jobs, want %d", len(snap), len(want))
	}
	for _, d := range snap {
		if !want[d.Name] {
			t.Fatalf("unexpected job name %q", d.Name)
		}
		delete(want, d.Name)
	}
}
