// Package report renders backup, restore and verification results for the
// terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"github.com/kebairia/sbackup/internal/operations"
)

var (
	okColor    = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow)
	titleColor = color.New(color.Bold)
	skipColor  = color.New(color.Faint)
)

func newTable() *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	return table
}

func status(step operations.StepResult) string {
	switch {
	case step.Skipped:
		return skipColor.Sprint("SKIPPED")
	case step.OK:
		return okColor.Sprint("OK")
	default:
		return failColor.Sprint("FAILED")
	}
}

func detail(step operations.StepResult) string {
	if step.Err != nil {
		return step.Err.Error()
	}
	if step.Skipped {
		return "nothing to restore"
	}
	var parts []string
	switch step.Name {
	case operations.StepStorage:
		parts = append(parts, fmt.Sprintf("%d/%d objects in %d buckets", step.ItemsOK, step.Items, step.Buckets))
		if step.BucketsFailed > 0 {
			parts = append(parts, fmt.Sprintf("%d buckets failed", step.BucketsFailed))
		}
	case string(operations.TargetAuthUsers), operations.StepAuth:
		parts = append(parts, fmt.Sprintf("%d/%d users", step.ItemsOK, step.Items))
	case operations.StepDatabase:
		parts = append(parts, fmt.Sprintf("%d/%d SQL files replayed", step.ItemsOK, step.Items))
	default:
		parts = append(parts, humanize.Bytes(uint64(step.SizeBytes)))
	}
	return strings.Join(parts, ", ")
}

func duration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// Backup prints the per-target summary of a backup run.
func Backup(w io.Writer, res *operations.BackupResult) {
	titleColor.Fprintf(w, "Backup summary (%s mode)\n", res.Mode)

	table := newTable()
	table.AddRow("TARGET", "STATUS", "DETAIL", "DURATION")
	for _, step := range res.Steps {
		table.AddRow(step.Name, status(step), detail(step), duration(step.Duration))
	}
	fmt.Fprintln(w, table)

	fmt.Fprintf(w, "Location: %s\n", res.Dir)
	if res.Succeeded() {
		okColor.Fprintln(w, "Backup completed successfully")
		return
	}
	failed := res.Results.Failed()
	names := make([]string, len(failed))
	for i, t := range failed {
		names[i] = string(t)
	}
	failColor.Fprintf(w, "Backup completed with failures: %s\n", strings.Join(names, ", "))
}

// Manifest prints the identity of the backup about to be restored.
func Manifest(w io.Writer, m *operations.Manifest) {
	titleColor.Fprintln(w, "Backup manifest")
	table := newTable()
	table.AddRow("Timestamp:", m.Timestamp)
	table.AddRow("Project ID:", m.ProjectID)
	table.AddRow("Mode:", string(m.Mode))
	table.AddRow("Created:", m.CreatedAt.Format(time.RFC3339))
	fmt.Fprintln(w, table)
}

// Restore prints the per-step summary of a restore run.
func Restore(w io.Writer, res *operations.RestoreResult) {
	titleColor.Fprintf(w, "Restore summary (%s mode)\n", res.Mode)
	if m := res.Manifest; m != nil {
		fmt.Fprintf(w, "Backup: %s, project %s\n", m.Timestamp, m.ProjectID)
	}

	table := newTable()
	table.AddRow("STEP", "STATUS", "DETAIL", "DURATION")
	for _, step := range res.Steps {
		table.AddRow(step.Name, status(step), detail(step), duration(step.Duration))
	}
	fmt.Fprintln(w, table)

	if res.Succeeded() {
		okColor.Fprintln(w, "Restore completed successfully")
	} else {
		failColor.Fprintln(w, "Restore completed with failures")
	}
}

// Verify prints a verification report.
func Verify(w io.Writer, r *operations.Report) {
	titleColor.Fprintf(w, "Verifying backup: %s\n", r.Dir)

	if m := r.Manifest; m != nil {
		fmt.Fprintf(w, "Manifest: %s, project %s, created %s\n",
			m.Timestamp, m.ProjectID, m.CreatedAt.Format(time.RFC3339))
	}

	if len(r.DatabaseFiles) > 0 {
		table := newTable()
		table.AddRow("DATABASE FILE", "SIZE")
		for _, f := range r.DatabaseFiles {
			table.AddRow(f.Name, humanize.Bytes(uint64(f.SizeBytes)))
		}
		fmt.Fprintln(w, table)
	}

	if len(r.Buckets) > 0 {
		table := newTable()
		table.AddRow("BUCKET", "FILES", "METADATA")
		table.RightAlign(1)
		for _, b := range r.Buckets {
			meta := okColor.Sprint("yes")
			if !b.HasMetadata {
				meta = warnColor.Sprint("missing")
			}
			table.AddRow(b.Name, b.Files, meta)
		}
		fmt.Fprintln(w, table)
	}

	if r.AuthUsers != nil {
		fmt.Fprintf(w, "Auth users: %d\n", *r.AuthUsers)
	}
	if r.Config != nil {
		fmt.Fprintf(w, "Config: project %s, backup version %s\n", r.Config.ProjectID, r.Config.BackupVersion)
	}

	for _, issue := range r.Issues {
		failColor.Fprintf(w, "ISSUE: %s\n", issue)
	}
	for _, warning := range r.Warnings {
		warnColor.Fprintf(w, "WARNING: %s\n", warning)
	}

	switch r.Status() {
	case operations.StatusPassed:
		okColor.Fprintln(w, "Verification passed")
	case operations.StatusWarnings:
		warnColor.Fprintln(w, "Verification passed with warnings")
	default:
		failColor.Fprintln(w, "Verification failed")
	}
}
