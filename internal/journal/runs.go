package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
)

// Outcome is the result of one unit of work.
type Outcome string

const (
	OutcomeDone        Outcome = "done"
	OutcomeToolFailure Outcome = "tool_failure"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

// Run is one invocation of a histosync command against a dataset.
type Run struct {
	ID         string
	Dataset    string
	Command    string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	Error      string
}

// Event is one processed image.
type Event struct {
	RunID      string
	Stage      string
	Basename   string
	Outcome    Outcome
	Duration   time.Duration
	Detail     string
	RecordedAt time.Time
}

// StartRun inserts a running run with a fresh identifier.
func (j *Journal) StartRun(ctx context.Context, dataset, command string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Dataset:   dataset,
		Command:   command,
		StartedAt: time.Now().UTC(),
		Status:    RunRunning,
	}
	err := j.exec(ctx,
		"INSERT INTO runs (id, dataset, command, started_at, status) VALUES (?, ?, ?, ?, ?)",
		run.ID, run.Dataset, run.Command, formatTime(run.StartedAt), string(run.Status),
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the final status of a run. A nil runErr with status
// RunFailed stores an empty message.
func (j *Journal) FinishRun(ctx context.Context, id string, status RunStatus, runErr error) error {
	message := ""
	if runErr != nil {
		message = strings.TrimSpace(runErr.Error())
	}
	err := j.exec(ctx,
		"UPDATE runs SET finished_at = ?, status = ?, error_message = ? WHERE id = ?",
		formatTime(time.Now().UTC()), string(status), message, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordEvent appends an event to its run.
func (j *Journal) RecordEvent(ctx context.Context, ev Event) error {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	err := j.exec(ctx,
		`INSERT INTO events (run_id, stage, basename, outcome, duration_ms, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Stage, ev.Basename, string(ev.Outcome), ev.Duration.Milliseconds(), ev.Detail, formatTime(ev.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. An empty dataset matches
// every dataset.
func (j *Journal) Runs(ctx context.Context, dataset string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT id, dataset, command, started_at, finished_at, status, error_message FROM runs"
	args := []any{}
	if dataset != "" {
		query += " WHERE dataset = ?"
		args = append(args, dataset)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
			status   string
		)
		if err := rows.Scan(&run.ID, &run.Dataset, &run.Command, &started, &finished, &status, &run.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = RunStatus(status)
		run.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns a run's events in insertion order.
func (j *Journal) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, stage, basename, outcome, duration_ms, detail, recorded_at
		 FROM events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev       Event
			outcome  string
			duration int64
			recorded string
		)
		if err := rows.Scan(&ev.RunID, &ev.Stage, &ev.Basename, &outcome, &duration, &ev.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Outcome = Outcome(outcome)
		ev.Duration = time.Duration(duration) * time.Millisecond
		ev.RecordedAt = parseTime(recorded)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// OutcomeCounts tallies a run's events by outcome.
func (j *Journal) OutcomeCounts(ctx context.Context, runID string) (map[Outcome]int, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT outcome, COUNT(1) FROM events WHERE run_id = ? GROUP BY outcome", runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[Outcome(outcome)] = count
	}
	return counts, rows.Err()
}

// MarkInterrupted closes runs left in the running state by a process that
// died without finishing them.
func (j *Journal) MarkInterrupted(ctx context.Context, dataset string) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := j.db.ExecContext(ctx,
			"UPDATE runs SET status = ?, finished_at = ? WHERE dataset = ? AND status = ?",
			string(RunInterrupted), formatTime(time.Now().UTC()), dataset, string(RunRunning))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("mark interrupted runs: %w", err)
	}
	return affected, nil
}

// ErrRunNotFound is returned by Run for unknown identifiers.
var ErrRunNotFound = errors.New("run not found")

// Run returns a single run by identifier or identifier prefix.
func (j *Journal) Run(ctx context.Context, idPrefix string) (Run, error) {
	runs, err := j.Runs(ctx, "", 1000)
	if err != nil {
		return Run{}, err
	}
	for _, run := range runs {
		if strings.HasPrefix(run.ID, idPrefix) && idPrefix != "" {
			return run, nil
		}
	}
	return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, idPrefix)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
