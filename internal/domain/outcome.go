package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the discrete result of one observed table round.
type Outcome string

const (
	OutcomeDragon Outcome = "DRAGON"
	OutcomeTiger  Outcome = "TIGER"
	OutcomeTie    Outcome = "TIE"
)

// Outcomes lists every valid outcome in canonical order. The order is
// load-bearing: Distribution indexing and simulation sampling rely on it.
var Outcomes = []Outcome{OutcomeDragon, OutcomeTiger, OutcomeTie}

// ParseOutcome converts feed spellings ("dragon", "D", "tie", ...) to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DRAGON", "D":
		return OutcomeDragon, nil
	case "TIGER", "T":
		return OutcomeTiger, nil
	case "TIE", "E":
		return OutcomeTie, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// OutcomeEvent is one recorded table round as delivered by the acquisition
// side. Immutable once recorded; Sequence is strictly increasing per session
// (gaps are tolerated, reordering is not).
type OutcomeEvent struct {
	Sequence  uint64            `json:"sequence"`
	Timestamp time.Time         `json:"timestamp"`
	Outcome   Outcome           `json:"outcome"`
	Meta      map[string]string `json:"meta,omitempty"`
}
