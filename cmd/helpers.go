package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nasa-gibs/oetime/internal/app"
	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/render"
)

// errLayersFailed is returned under --strict when a run finished with
// failed layers.
var errLayersFailed = errors.New("one or more layers failed")

// resolveFormat returns the effective format string, falling back to "table".
func resolveFormat(cfgFormat string) string {
	if globalFlags.Format != "" {
		return globalFlags.Format
	}
	if cfgFormat != "" {
		return cfgFormat
	}
	return render.FormatTable
}

// outputWriter returns the --out file when set, otherwise def. The returned
// close function is always safe to call.
func outputWriter(def io.Writer) (io.Writer, func() error, error) {
	if globalFlags.Out == "" {
		return def, func() error { return nil }, nil
	}
	f, err := os.Create(globalFlags.Out)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// newResult wraps data in a Result envelope stamped with the time since start.
func newResult(kind, command string, data interface{}, items int, start time.Time) *model.Result {
	return &model.Result{
		Kind:        kind,
		GeneratedAt: time.Now(),
		Command:     command,
		Data:        data,
		Stats: model.ResultStats{
			DurationMs: time.Since(start).Milliseconds(),
			Items:      items,
		},
	}
}

// emit renders result in the configured format to stdout (or --out) and the
// footer to stderr. Quiet mode suppresses both.
func emit(cmd *cobra.Command, deps *app.Deps, result *model.Result) error {
	if deps.Config.Quiet {
		return nil
	}
	out, closeFn, err := outputWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeFn()
	if err := render.Render(out, result, resolveFormat(deps.Config.Format)); err != nil {
		return err
	}
	render.PrintFooter(cmd.ErrOrStderr(), result, deps.Config.Verbose)
	return nil
}

// reportResult builds the envelope for a pipeline or loader report, turning
// each failed layer into a warning.
func reportResult(command string, report *model.Report, start time.Time) *model.Result {
	result := newResult(model.KindReport, command, report, len(report.Layers), start)
	for _, l := range report.Failures() {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", l.Key, l.Error))
	}
	return result
}

// strictCheck returns errLayersFailed when --strict is set and the report
// has failures.
func strictCheck(report *model.Report) error {
	if globalFlags.Strict && report != nil && len(report.Failures()) > 0 {
		return fmt.Errorf("%w: %d of %d", errLayersFailed, len(report.Failures()), len(report.Layers))
	}
	return nil
}

// parseOptionalTime parses a --start/--end style flag. Empty means unset.
func parseOptionalTime(s, label string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := model.ParseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", label, err)
	}
	return &t, nil
}
