package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/target/creative-dispatch/internal/domain/model"
)

func printJob(w io.Writer, job *model.Job) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"ID", job.ID},
		{"Type", string(job.Type)},
		{"Status", string(job.Status)},
		{"Retries", fmt.Sprintf("%d/%d", job.RetryCount, job.MaxRetries)},
		{"Replays", fmt.Sprintf("%d", job.ReplayCount)},
		{"Progress", fmt.Sprintf("%d/%d", job.Progress, job.Total)},
		{"Created", formatTime(&job.CreatedAt)},
		{"Next Run", formatTime(job.NextRunAt)},
		{"Finished", formatTime(job.FinishedAt)},
	}
	if job.ErrorType != nil {
		rows = append(rows, [2]string{"Error Type", *job.ErrorType})
	}
	if job.Error != nil {
		rows = append(rows, [2]string{"Error", *job.Error})
	}
	for _, row := range rows {
		if err := writef(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return fmt.Errorf("write job field %s: %w", row[0], err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush job: %w", err)
	}
	return nil
}

func printEvents(w io.Writer, events []*model.JobEvent) error {
	if err := writef(w, "\nEvents (%d)\n", len(events)); err != nil {
		return fmt.Errorf("write events header: %w", err)
	}
	if len(events) == 0 {
		return writeln(w, "  (none)")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "TIME\tTYPE\tMESSAGE"); err != nil {
		return fmt.Errorf("write events header row: %w", err)
	}
	for _, ev := range events {
		msg := "-"
		if ev.Message != nil {
			msg = *ev.Message
		}
		if err := writef(tw, "%s\t%s\t%s\n", formatTime(&ev.CreatedAt), ev.Type, msg); err != nil {
			return fmt.Errorf("write event %d: %w", ev.ID, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}

func printStats(w io.Writer, stats *model.JobStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writeln(tw, "STATUS\tCOUNT"); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	rows := []struct {
		status model.JobStatus
		count  int
	}{
		{model.JobStatusPending, stats.Pending},
		{model.JobStatusRunning, stats.Running},
		{model.JobStatusCompleted, stats.Completed},
		{model.JobStatusFailed, stats.Failed},
		{model.JobStatusDead, stats.Dead},
		{model.JobStatusCancelled, stats.Cancelled},
	}
	for _, row := range rows {
		if err := writef(tw, "%s\t%d\n", row.status, row.count); err != nil {
			return fmt.Errorf("write stats row %s: %w", row.status, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush stats: %w", err)
	}
	return nil
}

func printQueuePause(w io.Writer, qp model.QueuePause) error {
	if !qp.Paused {
		return writeln(w, "Queue: running")
	}
	if err := writef(w, "Queue: paused since %s\n", formatTime(qp.At)); err != nil {
		return err
	}
	if qp.Reason != "" {
		return writef(w, "Reason: %s\n", qp.Reason)
	}
	return nil
}

func printRunResult(w io.Writer, res *model.WorkerRunResult) error {
	if res.Paused {
		return writef(w, "%s: %s\n", res.Message, res.Reason)
	}
	return writef(w, "%s (processed %d)\n", res.Message, res.Processed)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}
