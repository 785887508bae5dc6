package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3leaps/bucketdir/pkg/output"
	"github.com/3leaps/bucketdir/pkg/provider"
	"github.com/3leaps/bucketdir/pkg/vdir"
)

// createWriter returns a JSONL writer on the command's stdout.
func createWriter(cmd *cobra.Command) (output.Writer, func()) {
	w := output.NewJSONLWriter(cmd.OutOrStdout(), uuid.New().String(), appConfig.Backend)
	return w, func() { _ = w.Close() }
}

// renderReport prints rep and converts the operation outcome into an exit
// error. rep is nil when the operation failed before any key was touched.
func renderReport(cmd *cobra.Command, rep *vdir.Report, opErr error) error {
	if rep == nil {
		if opErr == nil {
			return nil
		}
		if jsonOutput {
			w, done := createWriter(cmd)
			_ = w.WriteError(cmd.Context(), &output.ErrorRecord{
				Code:    vdir.ErrorCode(opErr),
				Message: opErr.Error(),
			})
			done()
		}
		return exitError(exitCodeFor(opErr), "Operation failed", opErr)
	}

	if jsonOutput {
		w, done := createWriter(cmd)
		defer done()
		for _, r := range rep.Results {
			if err := w.WriteResult(cmd.Context(), r.Record()); err != nil {
				return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
			}
		}
		if err := w.WriteSummary(cmd.Context(), rep.Summary()); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write summary", err)
		}
	} else if err := writeReportTable(cmd.OutOrStdout(), rep); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write report", err)
	}

	if opErr != nil {
		return exitError(exitCodeFor(opErr), fmt.Sprintf("%s %s", rep.Op, rep.Prefix), opErr)
	}
	return nil
}

func writeReportTable(out io.Writer, rep *vdir.Report) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if len(rep.Results) > 0 {
		if _, err := fmt.Fprintln(tw, "STATUS\tKEY\tTARGET\tERROR"); err != nil {
			return err
		}
	}
	for _, r := range rep.Results {
		status, msg := "ok", ""
		if !r.OK() {
			status, msg = "FAILED", r.Err.Error()
			if r.Stage != "" {
				status = "FAILED(" + string(r.Stage) + ")"
			}
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", status, r.Key, r.Target, msg); err != nil {
			return err
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%s: %d keys, %d succeeded, %d failed in %s\n",
		rep.Op, len(rep.Results), rep.Succeeded(), len(rep.Failed()), rep.Duration.Round(time.Millisecond))
	return err
}

// renderReceipt prints a single-object outcome.
func renderReceipt(cmd *cobra.Command, op vdir.Op, bucket, key, target string, rec *provider.Receipt, opErr error) error {
	r := vdir.Result{Op: op, Bucket: bucket, Key: key, Target: target, Receipt: rec, Err: opErr}
	if jsonOutput {
		w, done := createWriter(cmd)
		defer done()
		if err := w.WriteResult(cmd.Context(), r.Record()); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
		}
	} else if opErr == nil {
		line := fmt.Sprintf("%s %s", op, key)
		if target != "" {
			line += " -> " + target
		}
		if rec != nil && rec.Size > 0 {
			line += " (" + formatSize(rec.Size) + ")"
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write result", err)
		}
	}
	if opErr != nil {
		return exitError(exitCodeFor(opErr), fmt.Sprintf("%s %s", op, key), opErr)
	}
	return nil
}

// exitCodeFor maps an operation error onto a process exit code.
func exitCodeFor(err error) int {
	var batch *vdir.BatchError
	if errors.As(err, &batch) && len(batch.Failed) > 0 {
		err = batch.Failed[0].Err
	}
	switch vdir.ErrorCode(err) {
	case output.ErrCodeBucketUnresolved:
		return foundry.ExitInvalidArgument
	case output.ErrCodeNotFound:
		return foundry.ExitFileNotFound
	case output.ErrCodeLocalIO:
		return foundry.ExitFileWriteError
	case output.ErrCodeTimeout:
		if errors.Is(err, context.Canceled) {
			return foundry.ExitSignalInt
		}
	}
	return foundry.ExitExternalServiceUnavailable
}

func formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
