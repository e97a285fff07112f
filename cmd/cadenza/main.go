// Command cadenza runs a demonstration sequencer context: a tick loop driving
// dispatch and timeouts, with one retrying "dialer" sequencer that exercises
// the timeout, heartbeat and backoff machinery until the process is signalled.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/cadenza-io/cadenza/config"
	"github.com/cadenza-io/cadenza/core/seq"
	"github.com/cadenza-io/cadenza/internal/observability"
	"github.com/cadenza-io/cadenza/internal/telemetry"
)

const (
	defaultConfigPath = "config/cadenza.yaml"
	dialAttemptBudget = 5
	dialTimeout       = 2 * time.Second
)

func main() {
	cfgPath := flag.String("config", defaultConfigPath, "path to YAML configuration")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, fromFile, err := config.LoadOrDefault(*cfgPath)
	logger := observability.NewZerolog(observability.ZerologConfig{
		Level:     cfg.LogLevel,
		Component: "cadenza",
	})
	observability.SetLogger(logger)
	if err != nil {
		logger.Error("load config", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	if !fromFile {
		logger.Info("configuration file not found, using defaults",
			observability.Field{Key: "path", Value: *cfgPath})
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		logger.Error("initialize telemetry", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown telemetry", observability.Field{Key: "error", Value: err.Error()})
		}
	}()

	metrics, err := telemetry.NewMetrics(provider.Meter())
	if err != nil {
		logger.Error("create metrics", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	sc := seq.NewContext(seq.ContextOptions{
		Name:              "main",
		Logger:            logger,
		Metrics:           metrics,
		QueueWarnDepth:    cfg.QueueWarnDepth,
		HeartbeatInterval: cfg.HeartbeatInterval,
		EventPoolCapacity: cfg.EventPoolCapacity,
	})

	if err := startDialer(sc, logger); err != nil {
		logger.Error("start dialer", observability.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		runTicks(ctx, sc, cfg.TickInterval)
	})
	lifecycle.Wait()

	sc.DestroyAll()
	logger.Info("shutdown complete")
}

// runTicks is the owning goroutine's loop: one dispatch pass and one timeout
// check per tick, paced by a rate limiter.
func runTicks(ctx context.Context, sc *seq.Context, tick time.Duration) {
	limiter := rate.NewLimiter(rate.Every(tick), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		sc.DispatchPending()
		sc.CheckTimeouts()
	}
}

type dialerState struct {
	attempts int
}

// startDialer creates a sequencer that simulates dialing an unreachable peer:
// every attempt times out, the next one is scheduled from the backoff policy,
// and the sequencer destroys itself once the attempt budget is spent.
func startDialer(sc *seq.Context, logger observability.Logger) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond

	_, _, err := seq.Create(sc, seq.Info[dialerState]{
		Name:  "dialer",
		Retry: policy,
		Callback: func(s *seq.Sequencer, st *dialerState, kind seq.EventKind, _, _ any) seq.Disposition {
			switch kind {
			case seq.KindCreated:
				st.attempts = 1
				logger.Info("dial attempt",
					observability.Field{Key: "seq", Value: s.Name()},
					observability.Field{Key: "attempt", Value: st.attempts})
				if err := s.SetTimeout(dialTimeout); err != nil {
					return seq.Destroy
				}
			case seq.KindTimedOut:
				if st.attempts >= dialAttemptBudget {
					logger.Info("dial attempts exhausted",
						observability.Field{Key: "seq", Value: s.Name()})
					return seq.Destroy
				}
				st.attempts++
				delay, err := s.ScheduleRetry()
				if err != nil {
					return seq.Destroy
				}
				logger.Info("dial attempt",
					observability.Field{Key: "seq", Value: s.Name()},
					observability.Field{Key: "attempt", Value: st.attempts},
					observability.Field{Key: "next_delay", Value: delay.String()})
			case seq.KindHeartbeat:
				logger.Debug("dialer heartbeat",
					observability.Field{Key: "seq", Value: s.Name()},
					observability.Field{Key: "age", Value: s.Age().String()})
			case seq.KindDestroyed:
				logger.Info("dialer finished",
					observability.Field{Key: "seq", Value: s.Name()},
					observability.Field{Key: "attempts", Value: st.attempts})
			}
			return seq.Continue
		},
	})
	return err
}
