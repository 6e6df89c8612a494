// Package ids generates sortable identifiers for tasks, runs and sessions.
// The format is "<kind>_<UTC timestamp>_<12 hex chars>": the timestamp prefix
// keeps identifiers chronologically sortable for operators, the random suffix
// makes them collision-resistant under concurrent creation within one second.
package ids

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timeLayout = "20060102T150405Z"

// Kind prefixes
const (
	KindTask    = "task"
	KindRun     = "run"
	KindSession = "sess"
)

// New returns a fresh identifier of the given kind.
func New(kind string) string {
	return NewAt(kind, time.Now().UTC())
}

// NewAt returns an identifier stamped with the given creation time.
func NewAt(kind string, t time.Time) string {
	u := uuid.New()
	suffix := hex.EncodeToString(u[:6])
	return fmt.Sprintf("%s_%s_%s", kind, t.UTC().Format(timeLayout), suffix)
}

// Kind extracts the kind prefix, or "" if the identifier is malformed.
func Kind(id string) string {
	kind, _, ok := strings.Cut(id, "_")
	if !ok {
		return ""
	}
	return kind
}

// CreatedAt decodes the embedded creation timestamp.
func CreatedAt(id string) (time.Time, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed identifier: %q", id)
	}
	t, err := time.Parse(timeLayout, parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed identifier timestamp: %w", err)
	}
	return t, nil
}

// Valid reports whether id is a well-formed identifier of the given kind.
func Valid(id, kind string) bool {
	if Kind(id) != kind {
		return false
	}
	_, err := CreatedAt(id)
	return err == nil
}
