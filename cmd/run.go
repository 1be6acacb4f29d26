package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/goods-scheduler/internal/attempt"
	"github.com/example/goods-scheduler/internal/bus"
	"github.com/example/goods-scheduler/internal/config"
	"github.com/example/goods-scheduler/internal/db"
	"github.com/example/goods-scheduler/internal/engine"
	"github.com/example/goods-scheduler/internal/exchange"
	"github.com/example/goods-scheduler/internal/migrate"
	"github.com/example/goods-scheduler/internal/mihoyo"
	"github.com/example/goods-scheduler/internal/plans"
	"github.com/example/goods-scheduler/internal/probe"
	"github.com/example/goods-scheduler/internal/web"
)

func newRunCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the exchange scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log := newLogger(cfg.LogLevel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			// Plan source: database when configured, JSON file otherwise.
			var (
				source plans.Source = plans.FileSource{Path: cfg.PlansFile}
				store  *plans.Store
			)
			if cfg.DatabaseURL != "" {
				d, err := db.Open(ctx, cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer d.Close()
				if err := d.Ping(ctx); err != nil {
					return fmt.Errorf("db ping: %w", err)
				}
				if migrateUp {
					if err := migrate.Up(ctx, d); err != nil {
						return err
					}
				}
				store = plans.NewStore(d)
				source = store
			}

			planList, err := source.Plans(ctx)
			if err != nil {
				return err
			}
			if len(planList) == 0 {
				log.Info("no exchange plans to execute")
				return nil
			}

			provider := mihoyo.New(cfg.ExchangeAPIURL, cfg.GameRecordAPIURL)
			prober, err := probe.New(cfg.ExchangeAPIURL, 0, log)
			if err != nil {
				return fmt.Errorf("%w: %v", config.ErrInvalid, err)
			}

			b := bus.New(log)
			subscribeLogging(b, log)
			if store != nil {
				b.Subscribe(bus.AttemptCompleted, func(payload any) {
					res, ok := payload.(exchange.Result)
					if !ok {
						return
					}
					if err := store.RecordOutcome(context.Background(), res); err != nil {
						log.WithError(err).Warn("record outcome")
					}
				})
			}

			runner := &attempt.Runner{
				Provider: provider,
				MinDelay: cfg.Preference.LatencyMin,
				MaxDelay: cfg.Preference.LatencyMax,
				Log:      log,
			}
			eng := engine.New(runner, prober, b, log)
			if err := eng.Initialize(planList, cfg.Preference); err != nil {
				return err
			}
			if err := eng.Start(); err != nil {
				return err
			}
			defer eng.Stop()

			ws := &web.Server{Engine: eng, Log: log}
			go func() {
				if err := web.Start(ctx, cfg.ListenAddr, ws.Routes(), log); err != nil {
					log.WithError(err).Error("status API stopped")
				}
			}()

			log.Info("exchange timetable running, press ctrl-c to stop")
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}

// subscribeLogging attaches the observers that report every outcome: one line
// per attempt with the failure cause, one per probe cycle.
func subscribeLogging(b *bus.Bus, log logrus.FieldLogger) {
	b.Subscribe(bus.AttemptCompleted, func(payload any) {
		res, ok := payload.(exchange.Result)
		if !ok {
			return
		}
		entry := log.WithFields(logrus.Fields{
			"account": res.Plan.Account.UID,
			"good":    res.Plan.Good.Name,
			"status":  string(res.Status),
		})
		if res.Status.Succeeded() {
			entry.Info("exchange succeeded")
			return
		}
		entry.Errorf("exchange failed: %s", res.Status.Describe())
	})
	b.Subscribe(bus.ProbeCompleted, func(payload any) {
		res, ok := payload.(probe.Result)
		if !ok {
			return
		}
		switch res.State {
		case probe.StateOK:
			log.WithField("latency_ms", res.LatencyMS).Info("exchange API reachable")
		case probe.StateTimeout:
			log.Info("ping to exchange API timed out")
		default:
			log.Info("ping to exchange API failed")
		}
	})
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
