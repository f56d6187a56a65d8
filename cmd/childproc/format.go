package main

import (
	"fmt"
	"strings"

	"github.com/deixis/childproc/internal/report"
)

func formatRecord(p painter, rec *report.Record, withOutput bool) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	if withOutput {
		for _, s := range []struct {
			name      string
			data      *string
			truncated bool
		}{
			{"stdout", rec.Stdout, rec.StdoutTruncated},
			{"stderr", rec.Stderr, rec.StderrTruncated},
		} {
			if s.data == nil || *s.data == "" {
				continue
			}
			w("%s\n", p.paint(labelStyle, s.name+":"))
			w("%s", *s.data)
			if !strings.HasSuffix(*s.data, "\n") {
				w("\n")
			}
			if s.truncated {
				w("%s\n", p.paint(warnStyle, "(truncated at max buffer)"))
			}
			w("\n")
		}
	}

	if rec.Failed() {
		w("%s %s\n", p.paint(failStyle, "FAIL"), rec.Error)
	} else {
		w("%s\n", p.paint(passStyle, "ok"))
	}
	if rec.Overflow && rec.Outcome != report.MaxBuffer {
		w("  %s\n", p.paint(warnStyle, "output limit exceeded"))
	}
	if rec.TimedOut && rec.Outcome != report.Timeout {
		w("  %s\n", p.paint(warnStyle, "timed out"))
	}
	w("  %s %s\n", p.paint(labelStyle, "run"), p.paint(idStyle, rec.ID))
	w("  %s %dms\n", p.paint(labelStyle, "took"), rec.DurationMS)
	return string(b)
}

func formatHistory(p painter, recs []*report.Record) string {
	if len(recs) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	for _, rec := range recs {
		status := p.paint(passStyle, "ok  ")
		if rec.Failed() {
			status = p.paint(failStyle, "FAIL")
		}
		started := "-"
		if !rec.Started.IsZero() {
			started = rec.Started.Local().Format("01-02 15:04:05")
		}
		fmt.Fprintf(&b, "%s %s %s  %-20s %s\n", status, p.paint(idStyle, rec.ID), p.paint(labelStyle, started),
			rec.Status(), strings.Join(rec.Command, " "))
	}
	return b.String()
}
