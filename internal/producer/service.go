// Package producer submits jobs to the queue, either on demand or from
// recurring feeds driven by robfig/cron.
package producer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"vrtq/internal/jobqueue"
	logx "vrtq/pkg/logx"
)

type feedEntry struct {
	feed    Feed
	sched   Schedule
	entryID cron.EntryID
	// fired numbers the feed's jobs and survives re-registration.
	fired *atomic.Uint64
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	sink   Sink
	parser cron.Parser
	c      *cron.Cron
	loc    *time.Location
	feeds  map[string]*feedEntry

	submitted  atomic.Uint64
	duplicates atomic.Uint64
}

func New(cfg Config, sink Sink, log logx.Logger) (*Service, error) {
	s := &Service{
		log:  log.With(logx.String("comp", "producer")),
		sink: sink,
		// SecondOptional accepts both 5- and 6-field expressions.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		feeds:  map[string]*feedEntry{},
	}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Submit stamps a new descriptor with the current time and inserts it.
// A duplicate is counted and returned but is not fatal to the caller.
func (s *Service) Submit(name string, priority, vrt uint) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("job name required")
	}
	err := s.sink.Insert(jobqueue.NewDescriptor(name, priority, vrt))
	if errors.Is(err, jobqueue.ErrDuplicateJob) {
		s.duplicates.Add(1)
		s.log.Warn("submit skipped: duplicate", logx.String("job", name))
		return err
	}
	if err != nil {
		return err
	}
	s.submitted.Add(1)
	return nil
}

// AddFeed registers or replaces a feed by name.
func (s *Service) AddFeed(f Feed) error {
	e, err := s.newEntry(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.feeds[e.feed.Name]; ok {
		e.fired = old.fired
	}
	s.removeLocked(e.feed.Name)
	s.feeds[e.feed.Name] = e
	if s.c != nil {
		return s.registerLocked(e)
	}
	return nil
}

// RemoveFeed unregisters a feed. Jobs it already submitted stay queued.
func (s *Service) RemoveFeed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) Feeds() []FeedStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FeedStatus, 0, len(s.feeds))
	for _, e := range s.feeds {
		st := FeedStatus{Feed: e.feed, Kind: e.sched.Kind, Fired: e.fired.Load()}
		if s.c != nil && e.entryID != 0 {
			st.Next = s.c.Entry(e.entryID).Next
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) Snapshot() Snapshot {
	feeds := s.Feeds()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Running:    s.c != nil,
		Timezone:   s.location().String(),
		Submitted:  s.submitted.Load(),
		Duplicates: s.duplicates.Load(),
		Feeds:      feeds,
	}
}

// Validate reports whether cfg would be accepted by New or Apply.
func Validate(cfg Config) error {
	_, err := New(cfg, nil, logx.Logger{})
	return err
}

// Apply replaces the feed set and timezone. Every feed is validated before
// anything changes. Feeds whose definition is unchanged keep their cron
// entry; a feed that keeps its name keeps its job counter.
func (s *Service) Apply(cfg Config) error {
	entries := make(map[string]*feedEntry, len(cfg.Feeds))
	for _, f := range cfg.Feeds {
		e, err := s.newEntry(f)
		if err != nil {
			return err
		}
		if _, dup := entries[e.feed.Name]; dup {
			return fmt.Errorf("feed %q defined twice", e.feed.Name)
		}
		entries[e.feed.Name] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	for name, e := range entries {
		old, ok := s.feeds[name]
		if !ok {
			continue
		}
		if old.feed == e.feed {
			entries[name] = old
			continue
		}
		e.fired = old.fired
	}
	for name, old := range s.feeds {
		if entries[name] != old {
			s.removeLocked(name)
		}
	}
	s.feeds = entries
	if s.c == nil {
		return nil
	}
	if tzChanged {
		s.restartLocked()
		return nil
	}
	for _, e := range s.feeds {
		if e.entryID != 0 {
			continue
		}
		if err := s.registerLocked(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.startLocked()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for _, e := range s.feeds {
		e.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("producer stopped")
}

func (s *Service) startLocked() {
	s.loc = s.location()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, e := range s.feeds {
		if err := s.registerLocked(e); err != nil {
			s.log.Error("feed register failed", logx.String("feed", e.feed.Name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("producer started", logx.String("tz", s.loc.String()), logx.Int("feeds", len(s.feeds)))
}

func (s *Service) restartLocked() {
	<-s.c.Stop().Done()
	s.startLocked()
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) newEntry(f Feed) (*feedEntry, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return nil, errors.New("feed name required")
	}
	sc, err := ParseSchedule(f.Schedule)
	if err != nil {
		return nil, fmt.Errorf("feed %q: %w", f.Name, err)
	}
	if sc.Kind == ScheduleCron {
		if _, err := s.parser.Parse(sc.Cron); err != nil {
			return nil, fmt.Errorf("feed %q: %w", f.Name, err)
		}
	}
	return &feedEntry{feed: f, sched: sc, fired: new(atomic.Uint64)}, nil
}

func (s *Service) registerLocked(e *feedEntry) error {
	job := cron.FuncJob(func() { s.fire(e) })
	if e.sched.Kind == ScheduleInterval {
		e.entryID = s.c.Schedule(cron.Every(e.sched.Every), job)
		return nil
	}
	id, err := s.c.AddJob(e.sched.Cron, job)
	if err != nil {
		return err
	}
	e.entryID = id
	s.log.Debug("feed registered", logx.String("feed", e.feed.Name), logx.String("spec", e.sched.Spec()))
	return nil
}

func (s *Service) removeLocked(name string) bool {
	e, ok := s.feeds[name]
	if !ok {
		return false
	}
	if s.c != nil && e.entryID != 0 {
		s.c.Remove(e.entryID)
	}
	delete(s.feeds, name)
	return true
}

// fire submits the next job of a feed, named <feed>-<n>.
func (s *Service) fire(e *feedEntry) {
	n := e.fired.Add(1)
	name := e.feed.Name + "-" + strconv.FormatUint(n, 10)
	if err := s.Submit(name, e.feed.Priority, e.feed.VRT); err != nil && !errors.Is(err, jobqueue.ErrDuplicateJob) {
		s.log.Warn("feed submit failed", logx.String("feed", e.feed.Name), logx.Err(err))
	}
}
