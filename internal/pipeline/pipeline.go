// Package pipeline reads and writes timestamp streams on stdin/stdout, the
// pipe format shared by `periods detect` and `layer dates`.
//
// A stream carries one timestamp per line, either bare or as a JSONL record
// with a "date" field. Blank lines and lines starting with "#" or "//" are
// ignored.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nasa-gibs/oetime/internal/model"
)

type record struct {
	Date string `json:"date"`
}

// ReadTimestamps reads a timestamp stream from r. Lines that do not parse as
// a timestamp are returned in bad together with their line numbers; they are
// not an error. A read failure or an empty stream is.
func ReadTimestamps(r io.Reader) ([]time.Time, []string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var (
		dates []time.Time
		bad   []string
	)
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		raw := line
		if strings.HasPrefix(line, "{") {
			var rec record
			if err := json.Unmarshal([]byte(line), &rec); err != nil {
				bad = append(bad, fmt.Sprintf("line %d: invalid JSON", lineNum))
				continue
			}
			raw = rec.Date
		}
		t, err := model.ParseTimestamp(raw)
		if err != nil {
			bad = append(bad, fmt.Sprintf("line %d: %q", lineNum, raw))
			continue
		}
		dates = append(dates, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, bad, fmt.Errorf("reading input: %w", err)
	}
	if len(dates) == 0 {
		return nil, bad, fmt.Errorf("%w: no timestamps read from input (is stdin empty?)", model.ErrParse)
	}
	return dates, bad, nil
}

// WriteJSONL writes one {"date": ...} record per stored DateSet member.
func WriteJSONL(w io.Writer, dates []string) error {
	enc := json.NewEncoder(w)
	for _, d := range dates {
		if err := enc.Encode(record{Date: d}); err != nil {
			return err
		}
	}
	return nil
}

// WriteLines writes the dates one per line.
func WriteLines(w io.Writer, dates []string) error {
	bw := bufio.NewWriter(w)
	for _, d := range dates {
		if _, err := bw.WriteString(d + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// IsStdinTTY returns true when nothing is piped into the process.
func IsStdinTTY() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
