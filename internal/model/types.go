// Package model defines the canonical data types shared by the time index:
// layer keys, timestamps, per-layer status, ingestion reports and the result
// envelope that every command renders.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ─── Errors ───────────────────────────────────────────────────────────────────

// Error categories. Callers wrap these with %w and test with errors.Is.
var (
	// ErrParse marks a timestamp, key or config string that does not have the
	// expected shape. The offending item is skipped.
	ErrParse = errors.New("parse error")
	// ErrConfig marks a missing or invalid required setting. Fatal for the
	// invocation; nothing is written.
	ErrConfig = errors.New("configuration error")
	// ErrNotFound is returned by lookups on keys that do not exist.
	ErrNotFound = errors.New("not found")
)

// ─── Timestamps ───────────────────────────────────────────────────────────────

// DateLayout is the stored form of a DateSet member: second precision, UTC,
// no zone suffix.
const DateLayout = "2006-01-02T15:04:05"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	DateLayout,
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts the ISO-8601 shapes found in DateSets and configs
// and returns the instant in UTC truncated to the second.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrParse, s)
}

// FormatTimestamp renders t as a DateSet member.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// NormalizeTimestamp parses and re-formats s, so that "2024-01-01" and
// "2024-01-01T00:00:00Z" compare equal as set members.
func NormalizeTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return FormatTimestamp(t), nil
}

// ─── Layers ───────────────────────────────────────────────────────────────────

// LayerStatus is a read-only snapshot of one layer's index entries.
type LayerStatus struct {
	Key        string            `json:"key"`
	DateCount  int               `json:"date_count"`
	FirstDate  string            `json:"first_date,omitempty"`
	LastDate   string            `json:"last_date,omitempty"`
	Periods    []string          `json:"periods"`
	Default    string            `json:"default,omitempty"`
	Configs    []string          `json:"configs,omitempty"`
	BestLayer  string            `json:"best_layer,omitempty"`
	BestConfig []Candidate       `json:"best_config,omitempty"`
	BestMap    map[string]string `json:"best,omitempty"`
}

// Candidate is one entry of a composite layer's BestConfig.
type Candidate struct {
	Layer    string  `json:"layer"`
	Priority float64 `json:"priority"`
	Ordinal  int     `json:"ordinal"`
}

// LayerPeriods is the outcome of one period recompute or offline detection.
type LayerPeriods struct {
	Key       string   `json:"key,omitempty"`
	Dates     int      `json:"dates"`
	Periods   []string `json:"periods"`
	Default   string   `json:"default,omitempty"`
	Unchanged bool     `json:"unchanged,omitempty"`
}

// BestMap is a composite layer's date -> candidate assignment.
type BestMap struct {
	Key   string            `json:"key"`
	Dates map[string]string `json:"dates"`
}

// ─── Ingestion ────────────────────────────────────────────────────────────────

// Outcome classifies the handling of a single ingested item.
type Outcome int

const (
	OutcomeOk Outcome = iota
	OutcomeSkip
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOk:
		return "ok"
	case OutcomeSkip:
		return "skip"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// LayerReport is the result of one ingestion or load unit.
type LayerReport struct {
	Key       string   `json:"key"`
	Dates     int      `json:"dates"`
	Periods   []string `json:"periods,omitempty"`
	Default   string   `json:"default,omitempty"`
	BestLayer string   `json:"best_layer,omitempty"`
	Mirrors   []string `json:"mirrors,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Failed reports whether the unit ended in an error.
func (r LayerReport) Failed() bool { return r.Error != "" }

// Report summarises a pipeline or loader run.
type Report struct {
	Source   string        `json:"source"`
	Listed   int           `json:"listed"`
	Skipped  int           `json:"skipped"`
	Layers   []LayerReport `json:"layers"`
	Bypassed bool          `json:"bypassed,omitempty"`
}

// Failures returns the layer reports that ended in an error.
func (r *Report) Failures() []LayerReport {
	var out []LayerReport
	for _, l := range r.Layers {
		if l.Failed() {
			out = append(out, l)
		}
	}
	return out
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries timing metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindLayerStatus = "layer_status"
	KindLayerList   = "layer_list"
	KindReport      = "report"
	KindPeriods     = "periods"
	KindConversion  = "conversion"
	KindBestMap     = "best_map"
	KindStoreStats  = "store_stats"
)

// StoreStats describes the open backend.
type StoreStats struct {
	Backend string        `json:"backend"`
	Layers  int           `json:"layers"`
	Buckets []BucketStats `json:"buckets,omitempty"`
}

// BucketStats is the size of one embedded-store bucket.
type BucketStats struct {
	Name  string `json:"name"`
	Keys  int    `json:"keys"`
	Bytes int64  `json:"bytes"`
}

// Conversion is the outcome of a :periods key type conversion.
type Conversion struct {
	Pattern   string   `json:"pattern"`
	To        string   `json:"to"`
	Converted []string `json:"converted"`
	Unchanged int      `json:"unchanged"`
}
