// Package metrics exposes session activity to Prometheus:
//
//	orb_decisions_total{kind}        decisions by outcome kind
//	orb_trades_total{result}         closed trades by win|loss|flat
//	orb_exit_reasons_total{reason}   exits by reason
//	orb_equity_usd                   account capital after the last close
//	orb_daily_pnl_usd                realized PnL of the current day
//	orb_kill_switch                  1 while trading is halted for the day
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orbtrader/internal/session"
	"orbtrader/pkg/logger"
)

// Metrics holds the collectors; it is a session.Observer
type Metrics struct {
	decisions   *prometheus.CounterVec
	trades      *prometheus.CounterVec
	exitReasons *prometheus.CounterVec
	equity      prometheus.Gauge
	dailyPnL    prometheus.Gauge
	killSwitch  prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orb_decisions_total",
				Help: "Session decisions by kind",
			},
			[]string{"kind"},
		),
		trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orb_trades_total",
				Help: "Closed trades by result",
			},
			[]string{"result"},
		),
		exitReasons: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orb_exit_reasons_total",
				Help: "Exits split by reason",
			},
			[]string{"reason"},
		),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orb_equity_usd",
			Help: "Account capital in USD",
		}),
		dailyPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orb_daily_pnl_usd",
			Help: "Realized PnL of the current trading day",
		}),
		killSwitch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orb_kill_switch",
			Help: "1 while new entries are blocked for the day",
		}),
	}
	reg.MustRegister(m.decisions, m.trades, m.exitReasons, m.equity, m.dailyPnL, m.killSwitch)
	return m
}

func (m *Metrics) OnOutcome(o session.Outcome) error {
	m.decisions.WithLabelValues(string(o.Kind)).Inc()
	if o.Kind != session.KindExited {
		return nil
	}

	m.exitReasons.WithLabelValues(o.Reason).Inc()
	switch {
	case o.PnL > 0:
		m.trades.WithLabelValues("win").Inc()
	case o.PnL < 0:
		m.trades.WithLabelValues("loss").Inc()
	default:
		m.trades.WithLabelValues("flat").Inc()
	}
	m.dailyPnL.Add(o.PnL)
	m.equity.Add(o.PnL)
	return nil
}

func (m *Metrics) OnDayEnd(r session.DayReport) error {
	m.equity.Set(r.Summary.EndingCapital)
	m.dailyPnL.Set(r.Summary.DailyPnL)
	if r.Summary.KillSwitchTripped {
		m.killSwitch.Set(1)
	} else {
		m.killSwitch.Set(0)
	}
	return nil
}

// StartDay resets the per-day gauges
func (m *Metrics) StartDay(capital float64) {
	m.equity.Set(capital)
	m.dailyPnL.Set(0)
	m.killSwitch.Set(0)
}

// SetKillSwitch mirrors the engine's kill switch while the day runs
func (m *Metrics) SetKillSwitch(tripped bool) {
	if tripped {
		m.killSwitch.Set(1)
		return
	}
	m.killSwitch.Set(0)
}

// Handler serves /metrics for g and a /healthz probe
func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is done
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	srv := &http.Server{Addr: addr, Handler: Handler(g), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[METRICS] serving on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
