// Package chaos drives the chaos demo: it floods the orchestrator with ping
// runs, checks every reply and reports how the system coped while the havoc
// loop restarts and kills its containers.
package chaos

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"task-recipes/internal/orchestrator"
	"task-recipes/internal/workers/chaos/ping"

	"github.com/google/uuid"
)

// MaxResultAttempts bounds how often the driver tries to read the result of
// one completed run before counting it as a result failure.
const MaxResultAttempts = 5

// Tasks is the orchestrator surface the driver uses.
type Tasks interface {
	orchestrator.Submitter
	orchestrator.Reader
}

// Report tallies one driver run.
type Report struct {
	Iterations         int
	SubmissionFailures int
	PollingFailures    int
	ResultFetchErrors  int // failed reads, including ones retried later
	ResultFailures     int // completed runs whose result was never read
	ResultMismatches   int
	Retried            int
	Results            map[orchestrator.StateType]int
	SubmissionTime     time.Duration
	TotalTime          time.Duration
}

// Driver submits pings and polls them to a final state.
type Driver struct {
	tasks Tasks
	out   io.Writer
	poll  time.Duration
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDriver(tasks Tasks, out io.Writer, poll time.Duration) *Driver {
	if poll <= 0 {
		poll = time.Second
	}
	return &Driver{tasks: tasks, out: out, poll: poll, now: time.Now, sleep: sleepCtx}
}

// Run submits iterations pings and waits for all of them to finish.
func (d *Driver) Run(ctx context.Context, iterations int) (*Report, error) {
	start := d.now()
	report := &Report{Iterations: iterations, Results: map[orchestrator.StateType]int{}}

	pending := make(map[uuid.UUID]int, iterations)
	for i := 0; i < iterations; i++ {
		run, err := d.tasks.Submit(ctx, ping.TaskKey, ping.Input{Sequence: i})
		if err != nil {
			fmt.Fprintf(d.out, "Failed to submit task run %d: %v\n", i, err)
			report.SubmissionFailures++
			continue
		}
		if (i+1)%10 == 0 {
			if i == iterations-1 {
				fmt.Fprintf(d.out, "Submitted run %d tasks in %.3f seconds\n", i+1, d.now().Sub(start).Seconds())
			} else {
				fmt.Fprintf(d.out, "Submitted run %d tasks\n", i+1)
			}
		}
		pending[run.ID] = i
	}
	report.SubmissionTime = d.now().Sub(start)
	if iterations%10 != 0 {
		fmt.Fprintf(d.out, "Submitted %d tasks in %.3f seconds\n", iterations, report.SubmissionTime.Seconds())
	}

	retried := map[uuid.UUID]bool{}
	attempts := map[uuid.UUID]int{}
	for len(pending) > 0 {
		if err := d.sleep(ctx, d.poll); err != nil {
			return report, err
		}

		ids := make([]uuid.UUID, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		runs, err := d.tasks.ReadTaskRuns(ctx, orchestrator.TaskRunFilter{IDs: ids, Limit: len(ids)})
		if err != nil {
			fmt.Fprintf(d.out, "Failed to poll task runs: %v\n", err)
			report.PollingFailures++
			continue
		}

		active := map[orchestrator.StateType]int{}
		for _, run := range runs {
			seq, ok := pending[run.ID]
			if !ok {
				continue
			}
			if strings.Contains(run.State.Name, "Retry") {
				retried[run.ID] = true
			}
			if !run.State.IsFinal() {
				active[run.State.Type]++
				continue
			}

			if run.State.IsCompleted() {
				if !d.checkResult(ctx, run.ID, seq, attempts, report) {
					continue
				}
			}
			report.Results[run.State.Type]++
			delete(pending, run.ID)
		}
		fmt.Fprintf(d.out, "%d task runs remaining, %s\n", len(pending), formatCounts(active))
	}

	report.Retried = len(retried)
	report.TotalTime = d.now().Sub(start)
	return report, nil
}

// checkResult returns false when the result could not be fetched and the run
// should be looked at again on the next poll. After MaxResultAttempts failed
// fetches, or on an undecodable reply, the run counts as a result failure.
func (d *Driver) checkResult(ctx context.Context, id uuid.UUID, seq int, attempts map[uuid.UUID]int, report *Report) bool {
	res, err := d.tasks.ReadResult(ctx, id)
	if err != nil {
		report.ResultFetchErrors++
		attempts[id]++
		if attempts[id] < MaxResultAttempts {
			fmt.Fprintf(d.out, "Failed to fetch result for task run %d: %v\n", seq, err)
			return false
		}
		fmt.Fprintf(d.out, "Giving up on result for task run %d after %d attempts: %v\n", seq, attempts[id], err)
		report.ResultFailures++
		return true
	}

	reply, got, err := ping.DecodeReply(res)
	if err != nil {
		fmt.Fprintf(d.out, "Malformed result for task run %d: %v\n", seq, err)
		report.ResultFailures++
		return true
	}
	if reply != ping.Reply || got != seq {
		fmt.Fprintf(d.out, "Result mismatch for task run %d: got %q %d\n", seq, reply, got)
		report.ResultMismatches++
	}
	return true
}

func formatCounts(counts map[orchestrator.StateType]int) string {
	parts := make([]string, 0, len(counts))
	for _, t := range orchestrator.AllStateTypes {
		if n := counts[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, t))
		}
	}
	return strings.Join(parts, ", ")
}

// Print writes the summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "Submission failures:", r.SubmissionFailures)
	fmt.Fprintln(w, "Polling failures:", r.PollingFailures)
	fmt.Fprintln(w, "Result fetch errors:", r.ResultFetchErrors)
	fmt.Fprintln(w, "Unreadable results:", r.ResultFailures)
	fmt.Fprintln(w, "Tasks that retried:", r.Retried)

	types := make([]string, 0, len(r.Results))
	for t := range r.Results {
		types = append(types, string(t))
	}
	sort.Strings(types)
	results := make([]string, 0, len(types))
	for _, t := range types {
		results = append(results, fmt.Sprintf("%s=%d", t, r.Results[orchestrator.StateType(t)]))
	}
	fmt.Fprintln(w, "Task results:", strings.Join(results, " "))
	fmt.Fprintln(w, "Result mismatches:", r.ResultMismatches)
	fmt.Fprintf(w, "Submission rate: %.2f tasks per second\n", rate(r.Iterations, r.SubmissionTime))
	fmt.Fprintf(w, "Total rate: %.2f tasks per second\n", rate(r.Iterations, r.TotalTime))
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
