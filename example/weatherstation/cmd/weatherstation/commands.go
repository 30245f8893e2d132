package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/notification-dispatch-go/config"
	"github.com/AntonStoeckl/notification-dispatch-go/example/weatherstation"
	"github.com/AntonStoeckl/notification-dispatch-go/notify"
	"github.com/AntonStoeckl/notification-dispatch-go/notify/oteladapters"
	"github.com/AntonStoeckl/notification-dispatch-go/notify/promadapters"
	"github.com/AntonStoeckl/notification-dispatch-go/pgobserver"
)

const instrumentationName = "github.com/AntonStoeckl/notification-dispatch-go/example/weatherstation"

type rootFlags struct {
	configFile    string
	envFile       string
	stationName   string
	opentelemetry bool
	postgresDSN   string
	postgresTable string
}

// app is what every subcommand works with, assembled from flags and config.
type app struct {
	cfg          config.Config
	logger       *slog.Logger
	out          io.Writer
	installation *weatherstation.Installation
	cleanup      []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "weatherstation",
		Short:         "Publish weather measurements to phone, TV, web and alert observers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "YAML or TOML config file (default: NOTIFY_* environment)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", ".env file loaded before reading the environment")
	root.PersistentFlags().StringVar(&flags.stationName, "station", "station-7", "name of the weather station")
	root.PersistentFlags().BoolVar(&flags.opentelemetry, "otel", false, "install OpenTelemetry SDK providers: spans and metrics are written to the log output, logs carry trace ids")
	root.PersistentFlags().StringVar(&flags.postgresDSN, "postgres-dsn", "", "also append every notification to PostgreSQL")
	root.PersistentFlags().StringVar(&flags.postgresTable, "postgres-table", "weather_notifications", "table used with --postgres-dsn")

	root.AddCommand(newRunCmd(flags, out), newPublishCmd(flags, out), newServeCmd(flags, out))

	return root
}

func newRunCmd(flags *rootFlags, out io.Writer) *cobra.Command {
	var smsFailures int

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Play the sunny, rainy, stormy scenario and print every delivery report",
		Example: "  weatherstation run --sms-failures 2",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags, out, nil, smsFailures)
			if err != nil {
				return err
			}
			defer a.close()

			_, err = weatherstation.Play(cmd.Context(), a.installation, weatherstation.DefaultScenario(), out, a.cfg.RedeliveryOptions()...)

			return err
		},
	}

	cmd.Flags().IntVar(&smsFailures, "sms-failures", 1, "number of SMS sends that fail before the gateway recovers")

	return cmd
}

func newPublishCmd(flags *rootFlags, out io.Writer) *cobra.Command {
	var measurement weatherstation.Measurement
	var condition string

	cmd := &cobra.Command{
		Use:     "publish",
		Short:   "Publish one measurement",
		Example: "  weatherstation publish --condition Stormy --temperature 14.5 --pressure 990",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), flags, out, nil, 0)
			if err != nil {
				return err
			}
			defer a.close()

			measurement.Condition = weatherstation.Condition(condition)
			_, err = weatherstation.Play(cmd.Context(), a.installation, []weatherstation.Step{{Measurement: measurement}}, out,
				a.cfg.RedeliveryOptions()...)

			return err
		},
	}

	cmd.Flags().StringVar(&condition, "condition", string(weatherstation.Sunny), "Sunny, Cloudy, Rainy or Stormy")
	cmd.Flags().Float64Var(&measurement.Temperature, "temperature", 21, "temperature in °C")
	cmd.Flags().Float64Var(&measurement.Humidity, "humidity", 50, "relative humidity in percent")
	cmd.Flags().Float64Var(&measurement.Pressure, "pressure", 1013, "pressure in hPa")

	return cmd
}

func newServeCmd(flags *rootFlags, out io.Writer) *cobra.Command {
	var addr string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Publish random measurements periodically and expose Prometheus metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := prometheus.NewRegistry()

			metrics, err := promadapters.NewMetricsCollector(registry, promadapters.WithNamespace("weatherstation"))
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), flags, out, metrics, 0)
			if err != nil {
				return err
			}
			defer a.close()

			return serve(cmd.Context(), a, registry, addr, interval)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address of the /metrics endpoint")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between two measurements")

	return cmd
}

func serve(ctx context.Context, a *app, registry *prometheus.Registry, addr string, interval time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.logger.Info("serving metrics", "addr", addr)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	conditions := []weatherstation.Condition{weatherstation.Sunny, weatherstation.Cloudy, weatherstation.Rainy, weatherstation.Stormy}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return server.Shutdown(shutdownCtx)

		case err := <-serveErr:
			return err

		case <-ticker.C:
			measurement := weatherstation.Measurement{
				Condition:   conditions[rand.Intn(len(conditions))], //nolint:gosec // demo data
				Temperature: 10 + rand.Float64()*25,                 //nolint:gosec // demo data
				Humidity:    30 + rand.Float64()*60,                 //nolint:gosec // demo data
				Pressure:    990 + rand.Float64()*40,                //nolint:gosec // demo data
			}

			steps := []weatherstation.Step{{Measurement: measurement}}
			if _, err := weatherstation.Play(ctx, a.installation, steps, a.out, a.cfg.RedeliveryOptions()...); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				return err
			}
		}
	}
}

func newApp(ctx context.Context, flags *rootFlags, out io.Writer, metrics notify.MetricsCollector, smsFailures int) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger(out)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, out: out}

	var options []notify.Option

	if flags.opentelemetry {
		a.logger = slog.New(traceCorrelationHandler{Handler: logger.Handler()})
		a.cleanup = append(a.cleanup, installOpenTelemetry(a.logger))

		options = append(cfg.NotifierOptions(nil),
			notify.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))),
			notify.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(a.logger.Handler())),
		)

		if metrics == nil {
			options = append(options, notify.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))))
		}
	} else {
		options = cfg.NotifierOptions(logger)
	}

	if metrics != nil {
		options = append(options, notify.WithMetrics(metrics))
	}

	notifier, err := notify.NewNotifier(options...)
	if err != nil {
		return nil, err
	}

	station, err := weatherstation.NewWeatherStation(flags.stationName, notifier)
	if err != nil {
		return nil, err
	}

	sender := newUnreliableSender(smsFailures, weatherstation.NewWriterSender(out))

	sms, err := weatherstation.NewAlertService(weatherstation.SMS, sender, 30, "+49 151 0000000")
	if err != nil {
		return nil, err
	}

	email, err := weatherstation.NewAlertService(weatherstation.Email, weatherstation.NewWriterSender(out), 30, "ops@example.com")
	if err != nil {
		return nil, err
	}

	a.installation, err = weatherstation.Install(station, out, sms, email)
	if err != nil {
		return nil, err
	}

	if flags.postgresDSN != "" {
		if err = a.subscribePostgres(ctx, flags); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) subscribePostgres(ctx context.Context, flags *rootFlags) error {
	pool, err := pgxpool.New(ctx, flags.postgresDSN)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.cleanup = append(a.cleanup, pool.Close)

	observer, err := pgobserver.NewFromPGXPool(pool, pgobserver.WithTableName(flags.postgresTable), pgobserver.WithLogger(a.logger))
	if err != nil {
		return err
	}

	if _, err = pool.Exec(ctx, observer.CreateTableSQL()); err != nil {
		return fmt.Errorf("creating table %s: %w", flags.postgresTable, err)
	}

	handle, err := a.installation.Station.Notifier().Subscribe(observer)
	if err != nil {
		return err
	}

	a.installation.Handles["postgres"] = handle

	return nil
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	if flags.configFile != "" {
		return config.FromFile(flags.configFile)
	}

	if flags.envFile != "" {
		return config.FromEnvFiles(flags.envFile)
	}

	return config.FromEnvFiles()
}

var errGatewayUnavailable = errors.New("gateway unavailable")

// unreliableSender fails its first sends, to show failure isolation and redelivery.
// It is safe for concurrent use, e.g. by a timed-out observer still running next to its redelivery.
type unreliableSender struct {
	failures atomic.Int32
	next     weatherstation.Sender
}

func newUnreliableSender(failures int, next weatherstation.Sender) *unreliableSender {
	s := &unreliableSender{next: next}
	s.failures.Store(int32(max(failures, 0))) //nolint:gosec // flag value, small

	return s
}

func (s *unreliableSender) Send(ctx context.Context, channel weatherstation.Channel, recipient, message string) error {
	for {
		remaining := s.failures.Load()
		if remaining <= 0 {
			break
		}

		if s.failures.CompareAndSwap(remaining, remaining-1) {
			return errGatewayUnavailable
		}
	}

	return s.next.Send(ctx, channel, recipient, message)
}
