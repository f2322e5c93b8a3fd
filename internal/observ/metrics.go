package observ

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine telemetry. Counters accumulate across all runs in the process;
// per-run numbers live in each RunResult.
var (
	BarsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orbiter_bars_processed_total",
		Help: "Bars consumed by the event loop.",
	})
	BarsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbiter_bars_skipped_total",
		Help: "Bars rejected by anomaly checks.",
	}, []string{"reason"})
	RangesFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbiter_ranges_finalized_total",
		Help: "Opening ranges reaching a terminal state.",
	}, []string{"state"})
	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbiter_signals_total",
		Help: "Breakout signals emitted by direction.",
	}, []string{"direction"})
	GovernanceRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbiter_governance_rejections_total",
		Help: "Signals rejected by the governance gate.",
	}, []string{"reason"})
	TradesClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orbiter_trades_closed_total",
		Help: "Closed trades by exit reason.",
	}, []string{"reason"})
	ConfluenceScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbiter_confluence_score",
		Help:    "Confluence scores at breakout evaluation.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
	RunSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbiter_run_seconds",
		Help:    "Wall time per backtest run.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	OpenTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "orbiter_open_trades",
		Help: "Trades currently open across running backtests.",
	})
)

// Handler exposes the Prometheus scrape endpoint for the CLI's optional
// metrics listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
