package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/yourusername/tmichat/internal/config"
	"github.com/yourusername/tmichat/internal/database"
	"github.com/yourusername/tmichat/internal/errors"
	"github.com/yourusername/tmichat/internal/irc"
	"github.com/yourusername/tmichat/internal/maintenance"
	"github.com/yourusername/tmichat/internal/metrics"
	"github.com/yourusername/tmichat/internal/output"
	"github.com/yourusername/tmichat/internal/protocol"
	"github.com/yourusername/tmichat/internal/ratelimit"
	"github.com/yourusername/tmichat/internal/shutdown"
	"github.com/yourusername/tmichat/internal/sink"
	"github.com/yourusername/tmichat/internal/transport"
	"golang.org/x/sync/errgroup"
)

// startupTimeout bounds opening and migrating the database
const startupTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/tmichat.toml", "Path to the configuration file")
	envPath := flag.String("env", ".env", "Path to an optional .env file")
	rollbackFlag := flag.Bool("rollback", false, "Rollback the last applied database migration")
	flag.Parse()

	logger := output.NewColorLogger()
	logger.Info("tmichat - Starting...")

	if err := config.LoadEnv(*envPath); err != nil {
		logger.Error("Failed to load environment: %v", err)
		os.Exit(1)
	}

	cfg, err := config.LoadOrCreate(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.Success("Configuration loaded")

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	db, err := database.New(startCtx, cfg.Database.Path, cfg.Database.WALMode, logger)
	if err != nil {
		logger.Error("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	logger.Success("Database initialized")

	if *rollbackFlag {
		logger.Info("Rolling back last migration...")
		version, err := db.Rollback(startCtx)
		if err != nil {
			logger.Error("Rollback failed: %v", err)
			_ = db.Close()
			os.Exit(1)
		}
		logger.Success("Schema is back at version %d", version-1)
		_ = db.Close()
		os.Exit(0)
	}

	out, err := output.NewOutput(logger, cfg.Logging.ErrorLogPath, cfg.Logging.MaxLogSizeMB, cfg.Logging.MaxLogFiles)
	if err != nil {
		logger.Error("Failed to initialize output: %v", err)
		_ = db.Close()
		os.Exit(1)
	}
	errorHandler := errors.NewErrorHandler(out)

	if err := run(cfg, db, out, errorHandler); err != nil {
		os.Exit(1)
	}
}

// run wires the client and its sidecars and blocks until a signal, a fatal
// transport error or a disconnect.
func run(cfg *config.Config, db *database.DB, out *output.Output, errorHandler *errors.ErrorHandler) error {
	logger := out.Logger

	shutdownHandler := shutdown.NewHandler(logger, 5*time.Second)
	defer shutdownHandler.Stop()

	g, ctx := errgroup.WithContext(shutdownHandler.Context(context.Background()))

	conn := newTransport(cfg, logger)
	client := irc.NewClient(irc.Config{
		Nick:         cfg.Auth.Nick,
		OAuthToken:   cfg.Auth.OAuthToken,
		Capabilities: cfg.Auth.Capabilities,
		JoinInterval: cfg.Channels.GetJoinIntervalDuration(),
		Throttle:     cfg.Throttle.RateLimit(),
	}, conn, logger, db)

	client.OnError(func(err error) { errorHandler.Handle(err) })
	client.Queue().OnSendError(func(msg *ratelimit.OutboundMessage, err error) {
		if logErr := out.ErrorLogger.LogErrorWithNonce("Transport", "message not sent to #"+msg.Channel, err, msg.Nonce); logErr != nil {
			logger.Error("Failed to write to error log: %v", logErr)
		}
	})
	recordJoinHistory(client, db, logger)
	client.OnMessage(protocol.Notice, func(msg *protocol.Message) {
		logger.Info("NOTICE #%s: %s", msg.Channel(), msg.Trailing())
	})

	client.JoinChannels(cfg.Channels.AutoJoin)

	disconnected := make(chan struct{})
	client.OnDisconnected(func() {
		select {
		case <-disconnected:
		default:
			close(disconnected)
		}
	})

	g.Go(func() error {
		err := client.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			return nil
		case <-disconnected:
			return errors.NewTransportError("connection", errors.New("disconnected by server"))
		}
	})

	scheduler := maintenance.New(db, logger,
		cfg.Database.GetMaintenanceIntervalDuration(), cfg.Database.GetJoinHistoryRetention())
	g.Go(func() error { return scheduler.Run(ctx) })

	var collector *metrics.Collector
	if cfg.Metrics.Addr != "" {
		collector = metrics.New()
		collector.Attach(client)
		server := newMetricsServer(cfg.Metrics.Addr, collector)

		g.Go(func() error {
			logger.Info("Serving metrics on %s/metrics", cfg.Metrics.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return server.Shutdown(sctx)
		})
	}

	if cfg.KafkaEnabled() {
		publisher := sink.NewPublisher(sink.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		publisher.Attach(client)
		if collector != nil {
			collector.AttachSink(publisher)
		}
		logger.Info("Publishing inbound messages to Kafka topic %s", cfg.Kafka.Topic)
		g.Go(func() error { return publisher.Run(ctx) })
	}

	shutdownHandler.Register("client", func(context.Context) error { return client.Close() })
	shutdownHandler.Register("database", func(context.Context) error { return db.Close() })

	logger.Success("tmichat initialized")

	err := g.Wait()
	if err != nil {
		errorHandler.HandleWithContext(err, "run")
	}
	shutdownHandler.Shutdown()
	logger.Success("tmichat has shut down. Goodbye!")
	return err
}

func newTransport(cfg *config.Config, logger output.Logger) irc.LifecycleTransport {
	if cfg.Server.Transport == config.TransportTCP {
		return transport.NewTCP(cfg.Server.Address, cfg.Server.TLS, logger)
	}
	return transport.NewWebSocket(cfg.Server.URL, logger)
}

func newMetricsServer(addr string, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// recordJoinHistory stores each join step so maintenance can prune it later
func recordJoinHistory(client *irc.Client, db *database.DB, logger output.Logger) {
	record := func(channel string, outcome database.JoinOutcome) {
		if err := db.RecordJoinEvent(channel, outcome); err != nil {
			logger.Warning("Failed to record join event: %v", err)
		}
	}
	channels := client.Channels()
	channels.OnJoinSent(func(n string) { record(n, database.JoinSent) })
	channels.OnJoinCompleted(func(ch *irc.JoinedChannel) { record(ch.Name, database.JoinConfirmed) })
	channels.OnJoinCanceled(func(n string) { record(n, database.JoinRefused) })
}
