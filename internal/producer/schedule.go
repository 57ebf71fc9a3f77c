package producer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type ScheduleKind int

const (
	ScheduleCron ScheduleKind = iota
	ScheduleInterval
)

func (k ScheduleKind) String() string {
	if k == ScheduleInterval {
		return "interval"
	}
	return "cron"
}

// Schedule is a parsed feed schedule.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "0 */10 * * * *", "@hourly", "@every 30s"
//   - Go duration interval: "45s", "2h30m"
//   - HH:MM interval: "00:50" is fifty minutes
//
// A "cron:" prefix forces cron parsing; "interval:" or "every:" forces an interval.
type Schedule struct {
	Kind  ScheduleKind
	Cron  string
	Every time.Duration
}

// Spec renders s as a robfig/cron spec.
func (s Schedule) Spec() string {
	if s.Kind == ScheduleInterval {
		return "@every " + s.Every.String()
	}
	return s.Cron
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Schedule{}, fmt.Errorf("cron expression required after 'cron:'")
		}
		return Schedule{Kind: ScheduleCron, Cron: expr}, nil
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	case strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t"):
		return Schedule{Kind: ScheduleCron, Cron: s}, nil
	}

	if sc, err := parseInterval(s); err == nil {
		return sc, nil
	}
	return Schedule{}, fmt.Errorf("invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '00:30', or a duration like '45s')", raw)
}

func parseInterval(v string) (Schedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return Schedule{}, fmt.Errorf("invalid interval %q", v)
		}
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: ScheduleInterval, Every: d}, nil
}
