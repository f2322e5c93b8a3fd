package outbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/orblab/orbiter/internal/engine"
	"github.com/orblab/orbiter/internal/governance"
	"github.com/orblab/orbiter/internal/trade"
)

// Entry wraps one record line with its type and the run it belongs to.
type Entry struct {
	Type  string `json:"type"` // decision, trade, governance, summary
	RunID string `json:"run_id"`
	Data  any    `json:"data"`
}

// Outbox appends run records as JSONL. The file is append-only; replaying
// it reconstructs the run's full decision and trade stream.
type Outbox struct {
	f *os.File
	w *bufio.Writer
}

func New(path string) (*Outbox, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Outbox{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteRun streams everything a run produced: decisions in order, closed
// trades, per-session governance snapshots, and a summary line.
func (o *Outbox) WriteRun(res *engine.RunResult) error {
	for i := range res.Decisions {
		if err := o.append("decision", res.RunID, res.Decisions[i]); err != nil {
			return err
		}
	}
	for i := range res.Trades {
		if err := o.append("trade", res.RunID, res.Trades[i]); err != nil {
			return err
		}
	}
	for i := range res.Governance {
		if err := o.append("governance", res.RunID, res.Governance[i]); err != nil {
			return err
		}
	}
	return o.append("summary", res.RunID, summaryOf(res))
}

// WriteTrade appends a single closed-trade record.
func (o *Outbox) WriteTrade(runID string, t trade.Trade) error {
	return o.append("trade", runID, t)
}

// WriteGovernance appends one session's discipline snapshot.
func (o *Outbox) WriteGovernance(runID string, s governance.State) error {
	return o.append("governance", runID, s)
}

func (o *Outbox) append(kind, runID string, data any) error {
	b, err := json.Marshal(Entry{Type: kind, RunID: runID, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s entry: %w", kind, err)
	}
	if _, err := o.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Close flushes and closes the underlying file.
func (o *Outbox) Close() error {
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return err
	}
	return o.f.Close()
}

type summary struct {
	Symbol    string  `json:"symbol"`
	Sessions  int     `json:"sessions"`
	Bars      int     `json:"bars"`
	Skipped   int     `json:"skipped"`
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	Scratches int     `json:"scratches"`
	TotalR    float64 `json:"total_r"`
}

func summaryOf(res *engine.RunResult) summary {
	return summary{
		Symbol:    res.Symbol,
		Sessions:  res.Sessions,
		Bars:      res.BarsProcessed,
		Skipped:   res.BarsSkipped,
		Trades:    len(res.Trades),
		Wins:      res.Wins,
		Losses:    res.Losses,
		Scratches: res.Scratches,
		TotalR:    res.TotalR,
	}
}
