package console

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"vrtq/internal/eventbus"
	"vrtq/internal/jobqueue"
	"vrtq/internal/storage"
	logx "vrtq/pkg/logx"
)

func run(t *testing.T, c *Console, script string) string {
	t.Helper()
	var out strings.Builder
	if err := c.Run(context.Background(), strings.NewReader(script), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return out.String()
}

func newQueue(t *testing.T, n uint) *jobqueue.Queue {
	t.Helper()
	q, err := jobqueue.New(n)
	if err != nil {
		t.Fatalf("jobqueue.New: %v", err)
	}
	return q
}

func TestConsoleSession(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 1)
	c := New(q, WithPrompt(""))
	out := run(t, c, strings.Join([]string{
		"add 1 2 slow job",
		"add 5 1 fast",
		"pending",
		"process",
		"process",
		"list",
		"remove nobody",
		"remove slow job",
		"remove slow",
		"process",
		"process",
		"quit",
		"add 1 1 never",
	}, "\n"))

	for _, want := range []string{
		"added slow job (priority 1, vrt 2)",
		"added fast (priority 5, vrt 1)",
		"2 pending",
		"fast finished (granted 1)",
		"slow job ran 1, 1 left",
		"slow job",
		"nobody: not found",
		"usage: remove <name>",
		"slow: not found",
		"slow job finished (granted 1)",
		"no jobs to process",
		"bye",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "never") {
		t.Fatal("command after quit was executed")
	}
	if q.HasPendingJobs() {
		t.Fatalf("pending = %d, want 0", q.Len())
	}
}

func TestConsoleUsageErrors(t *testing.T) {
	t.Parallel()
	c := New(newQueue(t, 1))
	var out strings.Builder
	for _, line := range []string{"add", "add x 1 a", "add 1 -1 a", "remove", "frobnicate", "history"} {
		if c.Exec(context.Background(), line, &out) {
			t.Fatalf("%q asked to quit", line)
		}
	}
	got := out.String()
	for _, want := range []string{"usage: add", "usage: remove", `unknown command "frobnicate"`, "storage disabled"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
}

func TestConsoleShowAndDuplicate(t *testing.T) {
	t.Parallel()
	q := newQueue(t, 1)
	c := New(q)
	var out strings.Builder
	c.Exec(context.Background(), "show", &out)
	if out.String() != "<empty>\n" {
		t.Fatalf("show = %q", out.String())
	}

	d := jobqueue.NewDescriptor("a", 1, 1)
	_ = q.Insert(d)
	if err := q.Insert(d); err == nil {
		t.Fatal("expected duplicate")
	}
	out.Reset()
	c.Exec(context.Background(), "show", &out)
	if out.String() != "a [p=1 vrt=1]\n" {
		t.Fatalf("show = %q", out.String())
	}
}

func TestConsoleHistory(t *testing.T) {
	t.Parallel()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "a.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer st.Close()
	for _, name := range []string{"a", "b"} {
		r, _ := storage.RecordFromEvent(eventbus.Event{Type: eventbus.JobInserted, Data: eventbus.JobEvent{Name: name, Priority: 1, VRT: 2}})
		if err := st.AppendEvent(context.Background(), r); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	c := New(newQueue(t, 1), WithStore(st))
	var out strings.Builder
	c.Exec(context.Background(), "history 1", &out)
	got := out.String()
	if !strings.Contains(got, "job.inserted") || !strings.Contains(got, " b ") || strings.Contains(got, " a ") {
		t.Fatalf("history output:\n%s", got)
	}
}
