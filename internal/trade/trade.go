package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/orblab/orbiter/internal/market"
)

// ErrInvariant marks internal-consistency failures: a loosened stop, a
// backwards state transition, a reopened trade. These are engine bugs, not
// bad input, and abort the run.
var ErrInvariant = errors.New("trade invariant violation")

// State is the trade lifecycle. Transitions are monotonic and irreversible:
// Pending -> Open -> PartiallyClosed -> Closed (PartiallyClosed may be
// skipped).
type State int

const (
	Pending State = iota
	Open
	PartiallyClosed
	Closed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Open:
		return "open"
	case PartiallyClosed:
		return "partially_closed"
	}
	return "closed"
}

// ExitReason says why a trade (or part of it) closed.
type ExitReason string

const (
	ExitStop       ExitReason = "stop"
	ExitTargets    ExitReason = "targets"
	ExitTrail      ExitReason = "trail_stop"
	ExitCutoff     ExitReason = "cutoff_flatten"
	ExitSessionEnd ExitReason = "session_flatten"
	ExitDatasetEnd ExitReason = "dataset_end"
)

// Fill is one realized slice of the position.
type Fill struct {
	Time     time.Time `json:"time"`
	Price    float64   `json:"price"`
	Fraction float64   `json:"fraction"`
	R        float64   `json:"r"`
	Kind     string    `json:"kind"` // t1, t2, stop, flatten, trail
}

// Trade is owned exclusively by the Manager; everything handed outside is a
// copied value.
type Trade struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Session     string           `json:"session"`
	Direction   market.Direction `json:"direction"`
	SignalTime  time.Time        `json:"signal_time"`
	EntryTime   time.Time        `json:"entry_time"`
	Entry       float64          `json:"entry"`
	InitialStop float64          `json:"initial_stop"`
	Stop        float64          `json:"stop"`
	Risk        float64          `json:"risk"` // per-unit entry-to-stop distance
	T1          float64          `json:"t1"`
	T2          float64          `json:"t2"`
	State       State            `json:"state"`
	Remaining   float64          `json:"remaining"` // open fraction of full size
	RealizedR   float64          `json:"realized_r"`
	Fills       []Fill           `json:"fills"`
	ExitTime    time.Time        `json:"exit_time,omitempty"`
	ExitReason  ExitReason       `json:"exit_reason,omitempty"`

	t1Hit, t2Hit bool
	trailAnchor  float64
}

// R converts an exit price to an R multiple of the initial risk.
func (t *Trade) R(price float64) float64 {
	if t.Direction == market.Long {
		return (price - t.Entry) / t.Risk
	}
	return (t.Entry - price) / t.Risk
}

// transition enforces monotonic lifecycle progress.
func (t *Trade) transition(to State) error {
	if to < t.State {
		return fmt.Errorf("%w: %s -> %s on trade %s", ErrInvariant, t.State, to, t.ID)
	}
	if t.State == Closed && to != Closed {
		return fmt.Errorf("%w: reopening closed trade %s", ErrInvariant, t.ID)
	}
	t.State = to
	return nil
}

// ratchetStop offers a stop candidate; only favorable moves are taken, so
// the stop never retreats through this path.
func (t *Trade) ratchetStop(price float64) {
	if t.Direction == market.Long {
		if price > t.Stop {
			t.Stop = price
		}
		return
	}
	if price < t.Stop {
		t.Stop = price
	}
}

// forceStop sets the stop directly and errors if the move loosens it.
// Used by internal transitions that must never go backwards.
func (t *Trade) forceStop(price float64) error {
	loosens := (t.Direction == market.Long && price < t.Stop) ||
		(t.Direction == market.Short && price > t.Stop)
	if loosens {
		return fmt.Errorf("%w: stop on %s would loosen from %.4f to %.4f",
			ErrInvariant, t.ID, t.Stop, price)
	}
	t.Stop = price
	return nil
}
