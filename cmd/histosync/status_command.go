package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"histosync/internal/capacity"
	"histosync/internal/journal"
	"histosync/internal/preflight"
	"histosync/internal/reconcile"
	"histosync/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queues, checks and disk usage for a dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := stageContext(cmd)
			defer stop()

			s, err := ctx.openSession(runCtx, sessionOptions{command: "status", offline: true})
			if err != nil {
				return err
			}
			defer s.close(runCtx, nil)

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			writeLines(out, renderSectionHeader("Dataset", colorize))
			fmt.Fprintln(out, renderStatusLine("Name", statusInfo, s.ds.Name, colorize))
			fmt.Fprintln(out, renderStatusLine("Downsample ratio", statusInfo, strconv.Itoa(s.ds.Ratio), colorize))
			fmt.Fprintln(out, renderStatusLine("Local directory", statusInfo, s.ds.Root(), colorize))
			fmt.Fprintln(out, renderStatusLine("Remote originals", statusInfo, s.ds.RemoteOriginalsDir(), colorize))
			fmt.Fprintln(out, renderStatusLine("Remote downsamples", statusInfo, s.ds.RemoteDownsamplesDir(), colorize))
			fmt.Fprintln(out)

			writeLines(out, renderSectionHeader("Checks", colorize))
			for _, result := range preflight.RunAll(runCtx, s.cfg, preflight.Requirements{Shrink: true}) {
				fmt.Fprintln(out, renderCheck(result, colorize))
			}
			var snapshot *reconcile.Snapshot
			if err := s.connect(runCtx); err != nil {
				fmt.Fprintln(out, renderStatusLine("Remote archive", statusError, err.Error(), colorize))
			} else {
				fmt.Fprintln(out, renderCheck(preflight.CheckRemote(runCtx, "Remote archive", s.remote, s.ds.RemoteOriginalsDir()), colorize))
				snapshot, err = s.recon.Snapshot(runCtx)
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("Snapshot", statusError, err.Error(), colorize))
				}
			}
			fmt.Fprintln(out)

			if snapshot != nil {
				writeLines(out, renderSectionHeader("Queues", colorize))
				fmt.Fprintln(out, renderCounts(snapshot.Counts()))
				fmt.Fprintln(out)
			}

			writeLines(out, renderSectionHeader("Disk", colorize))
			writeDiskStatus(runCtx, out, s, colorize)

			if s.journal != nil {
				fmt.Fprintln(out)
				writeLines(out, renderSectionHeader("Last run", colorize))
				writeLastRun(runCtx, out, s, colorize)
			}
			return nil
		},
	}
}

func renderCheck(result preflight.Result, colorize bool) string {
	kind := statusOK
	if !result.Passed {
		kind = statusError
	}
	return renderStatusLine(result.Name, kind, result.Detail, colorize)
}

func renderCounts(c reconcile.Counts) string {
	row := func(label string, n int) []string { return []string{label, strconv.Itoa(n)} }
	return renderTable(
		[]string{"Set", "Images"},
		[][]string{
			row("Remote originals", c.RemoteOriginals),
			row("Local originals", c.LocalOriginals),
			row("Local downsamples", c.LocalDownsamples),
			row("Remote downsamples", c.RemoteDownsamples),
			row("Error list", c.ErrorFiles),
			row("To downsample", c.OriginalsToDownsample),
			row("To download", c.OriginalsToDownload),
			row("Ready to process", c.OriginalsReadyToProcess),
			row("To upload", c.DownsamplesToUpload),
			row("Downsamples to fetch", c.DownsamplesToDownload),
		},
		[]columnAlignment{alignLeft, alignRight},
	)
}

func writeDiskStatus(ctx context.Context, out io.Writer, s *session, colorize bool) {
	guard := capacity.New(s.cfg.Capacity, s.cfg.Paths.ImagesDir, s.logger)
	available, err := guard.AvailableGigabytes(ctx)
	switch {
	case err != nil:
		fmt.Fprintln(out, renderStatusLine("Free space", statusError, err.Error(), colorize))
	default:
		kind := statusOK
		if available < s.cfg.Capacity.ThresholdGB {
			kind = statusWarn
		}
		msg := fmt.Sprintf("%.1f GiB at %s (threshold %.1f GiB)", available, guard.Path(), s.cfg.Capacity.ThresholdGB)
		fmt.Fprintln(out, renderStatusLine("Free space", kind, msg, colorize))
	}

	fmt.Fprintln(out, renderStatusLine("Originals size", statusInfo,
		humanize.IBytes(uint64(staging.DirSize(s.ds.LocalOriginalsDir()))), colorize))
	fmt.Fprintln(out, renderStatusLine("Downsamples size", statusInfo,
		humanize.IBytes(uint64(staging.DirSize(s.ds.LocalDownsamplesDir()))), colorize))

	partials, err := staging.ListPartials(s.ds.Root())
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Partial files", statusError, err.Error(), colorize))
		return
	}
	if len(partials) == 0 {
		fmt.Fprintln(out, renderStatusLine("Partial files", statusOK, "none", colorize))
		return
	}
	var size int64
	oldest := time.Now()
	for _, p := range partials {
		size += p.Size
		if p.ModTime.Before(oldest) {
			oldest = p.ModTime
		}
	}
	msg := fmt.Sprintf("%d (%s, oldest %s)", len(partials), humanize.IBytes(uint64(size)), humanize.Time(oldest))
	fmt.Fprintln(out, renderStatusLine("Partial files", statusWarn, msg, colorize))
}

func writeLastRun(ctx context.Context, out io.Writer, s *session, colorize bool) {
	runs, err := s.journal.Runs(ctx, s.ds.Name, 1)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Journal", statusError, err.Error(), colorize))
		return
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, renderStatusLine("Journal", statusInfo, "no runs recorded", colorize))
		return
	}
	run := runs[0]
	kind := statusOK
	switch run.Status {
	case journal.RunFailed:
		kind = statusError
	case journal.RunInterrupted, journal.RunRunning:
		kind = statusWarn
	}
	msg := fmt.Sprintf("%s %s (%s)", run.Command, run.Status, humanize.Time(run.StartedAt))
	if run.Error != "" {
		msg += ": " + run.Error
	}
	fmt.Fprintln(out, renderStatusLine("Run "+shortID(run.ID), kind, msg, colorize))
}

func writeLines(out io.Writer, lines []string) {
	fmt.Fprintln(out, strings.Join(lines, "\n"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
