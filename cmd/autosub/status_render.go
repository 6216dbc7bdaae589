package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"autosub/internal/pipeline"
)

var outcomeCaser = cases.Title(language.English)

const (
	ansiGreen  = "32"
	ansiYellow = "33"
	ansiRed    = "31"
)

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

func colorize(value, code string) string {
	if !stdoutIsTerminal() {
		return value
	}
	return "\x1b[" + code + "m" + value + "\x1b[0m"
}

// outcomeLabel renders an outcome for humans: "skipped_present" becomes
// "Skipped Present".
func outcomeLabel(outcome pipeline.Outcome) string {
	return outcomeCaser.String(strings.ReplaceAll(string(outcome), "_", " "))
}

func outcomeCell(result pipeline.JobResult) string {
	label := outcomeLabel(result.Outcome)
	switch {
	case result.Outcome == pipeline.OutcomeMuxed:
		return colorize(label, ansiGreen)
	case result.Outcome == pipeline.OutcomeFailed:
		return colorize(label, ansiRed)
	default:
		return colorize(label, ansiYellow)
	}
}

// renderSummary formats a finished run as a per-file table plus totals.
func renderSummary(summary *pipeline.Summary) string {
	var builder strings.Builder

	if len(summary.Results) > 0 {
		rows := make([][]string, 0, len(summary.Results))
		for _, result := range summary.Results {
			detail := result.OutputPath
			if result.Outcome == pipeline.OutcomeFailed {
				detail = result.ErrorKind
				if result.Err != nil {
					detail = fmt.Sprintf("%s: %v", result.ErrorKind, result.Err)
				}
			}
			rows = append(rows, []string{
				result.Path,
				outcomeCell(result),
				fmt.Sprintf("%d", result.Attempts),
				result.Duration.Round(time.Millisecond).String(),
				detail,
			})
		}
		builder.WriteString(renderTable(
			[]string{"File", "Outcome", "Attempts", "Duration", "Detail"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		))
		builder.WriteByte('\n')
	}

	builder.WriteString(fmt.Sprintf("%s muxed, %s skipped, %s failed (%d files in %s)\n",
		colorize(fmt.Sprintf("%d", summary.Muxed()), ansiGreen),
		colorize(fmt.Sprintf("%d", summary.Skipped()), ansiYellow),
		colorize(fmt.Sprintf("%d", summary.Failed()), ansiRed),
		len(summary.Results),
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond)))

	return builder.String()
}
