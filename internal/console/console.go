// Package console is a line-oriented operator interface to a queue.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"vrtq/internal/jobqueue"
	"vrtq/internal/storage"
)

// Queue is the subset of *jobqueue.Queue the console drives.
type Queue interface {
	Insert(job jobqueue.Descriptor) error
	HasPendingJobs() bool
	Len() int
	SelectAndConsume() (jobqueue.Result, error)
	RemoveByName(name string) jobqueue.RemoveStatus
	Snapshot() []jobqueue.Descriptor
	RenderTree() string
}

type Console struct {
	q      Queue
	store  storage.Store
	prompt string
}

type Option func(*Console)

// WithStore enables the history command.
func WithStore(st storage.Store) Option {
	return func(c *Console) { c.store = st }
}

// WithPrompt sets the prompt printed before each line. Empty disables it.
func WithPrompt(p string) Option {
	return func(c *Console) { c.prompt = p }
}

func New(q Queue, opts ...Option) *Console {
	c := &Console{q: q, prompt: "> "}
	for _, o := range opts {
		o(c)
	}
	return c
}

const usage = `Commands:
  add <priority> <vrt> <name>   insert a job
  remove <name>                 remove a job by name
  process                       select the next job and consume one slice
  show                          print the tree sideways
  pending                       number of queued jobs
  list                          queued jobs in scheduling order
  history [n]                   last n audit records (default 10)
  help                          this text
  quit                          leave the console
`

// Run reads commands from in until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprint(out, usage)
	sc := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.prompt != "" {
			fmt.Fprint(out, c.prompt)
		}
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		if c.Exec(ctx, sc.Text(), out) {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string, out io.Writer) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		fmt.Fprintln(out, "bye")
		return true
	case "help", "?":
		fmt.Fprint(out, usage)
	case "add":
		c.add(args, out)
	case "remove", "rm":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: remove <name>")
			return false
		}
		fmt.Fprintf(out, "%s: %s\n", args[0], c.q.RemoveByName(args[0]))
	case "process":
		c.process(out)
	case "show":
		fmt.Fprint(out, c.q.RenderTree())
	case "pending":
		fmt.Fprintf(out, "%d pending\n", c.q.Len())
	case "list":
		c.list(out)
	case "history":
		c.history(ctx, args, out)
	default:
		fmt.Fprintf(out, "unknown command %q (try help)\n", cmd)
	}
	return false
}

func (c *Console) add(args []string, out io.Writer) {
	if len(args) < 3 {
		fmt.Fprintln(out, "usage: add <priority> <vrt> <name>")
		return
	}
	prio, err1 := strconv.ParseUint(args[0], 10, 0)
	vrt, err2 := strconv.ParseUint(args[1], 10, 0)
	if err1 != nil || err2 != nil {
		fmt.Fprintln(out, "usage: add <priority> <vrt> <name>")
		return
	}
	name := strings.Join(args[2:], " ")
	err := c.q.Insert(jobqueue.NewDescriptor(name, uint(prio), uint(vrt)))
	switch {
	case errors.Is(err, jobqueue.ErrDuplicateJob):
		fmt.Fprintf(out, "skipped %s: an identical job is already queued\n", name)
	case err != nil:
		fmt.Fprintf(out, "error: %v\n", err)
	default:
		fmt.Fprintf(out, "added %s (priority %d, vrt %d)\n", name, prio, vrt)
	}
}

func (c *Console) process(out io.Writer) {
	if !c.q.HasPendingJobs() {
		fmt.Fprintln(out, "no jobs to process")
		return
	}
	r, err := c.q.SelectAndConsume()
	if errors.Is(err, jobqueue.ErrEmptyQueue) {
		fmt.Fprintln(out, "no jobs to process")
		return
	}
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	if r.Finished {
		fmt.Fprintf(out, "%s finished (granted %d)\n", r.Name, r.Granted)
		return
	}
	fmt.Fprintf(out, "%s ran %d, %d left\n", r.Name, r.Granted, r.VRT)
}

func (c *Console) list(out io.Writer) {
	jobs := c.q.Snapshot()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "<empty>")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tPRIORITY\tVRT\tWAITING")
	now := time.Now()
	for i, j := range jobs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", i+1, j.Name, j.Priority, j.VRT, now.Sub(j.EnqueuedAt).Round(time.Millisecond))
	}
	_ = tw.Flush()
}

func (c *Console) history(ctx context.Context, args []string, out io.Writer) {
	if c.store == nil {
		fmt.Fprintln(out, "history unavailable: storage disabled")
		return
	}
	n := 10
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			fmt.Fprintln(out, "usage: history [n]")
			return
		}
		n = v
	}
	recs, err := c.store.Recent(ctx, n)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "<no records>")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tTYPE\tJOB\tPRIORITY\tVRT\tGRANTED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", r.At.Format("15:04:05.000"), r.Type, r.Job, r.Priority, r.VRT, r.Granted)
	}
	_ = tw.Flush()
}
