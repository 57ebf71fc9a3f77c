package producer

import (
	"time"

	"vrtq/internal/jobqueue"
)

// Feed submits one job every time its schedule fires.
type Feed struct {
	Name     string
	Schedule string
	Priority uint
	VRT      uint
}

type Config struct {
	// Timezone is an IANA name; empty means Local.
	Timezone string
	Feeds    []Feed
}

// Sink receives submitted jobs. *jobqueue.Queue satisfies it.
type Sink interface {
	Insert(job jobqueue.Descriptor) error
}

// FeedStatus is the diagnostic view of one registered feed.
type FeedStatus struct {
	Feed
	Kind  ScheduleKind
	Fired uint64
	Next  time.Time
}

type Snapshot struct {
	Running    bool
	Timezone   string
	Submitted  uint64
	Duplicates uint64
	Feeds      []FeedStatus
}
