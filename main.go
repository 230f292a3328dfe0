package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/camlink/cmd"
	"github.com/smazurov/camlink/internal/api"
	_ "github.com/smazurov/camlink/internal/camera/tcpcam"
	"github.com/smazurov/camlink/internal/config"
	"github.com/smazurov/camlink/internal/events"
	"github.com/smazurov/camlink/internal/logging"
	camnats "github.com/smazurov/camlink/internal/nats"
	"github.com/smazurov/camlink/internal/session"
	"github.com/smazurov/camlink/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"camlink.toml"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// NATS settings
	NatsURL      string `help:"NATS server URL (empty disables the bridge)" default:"" toml:"nats.url" env:"NATS_URL"`
	NatsEmbedded bool   `help:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NatsPort     int    `help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSession string `help:"Session logging level" default:"info" toml:"logging.session" env:"LOGGING_SESSION"`
	LoggingCamera  string `help:"Camera connection logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingNats    string `help:"NATS bridge logging level" default:"info" toml:"logging.nats" env:"LOGGING_NATS"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration automatically
		if loadErr := config.LoadOptions(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		// Initialize logging. The [logging] table may set levels for any
		// module; flags cover the common ones and win over the file.
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		for module, level := range map[string]string{
			"session": opts.LoggingSession,
			"camera":  opts.LoggingCamera,
			"api":     opts.LoggingAPI,
			"nats":    opts.LoggingNats,
		} {
			if level != "" {
				loggingConfig.Modules[module] = level
			}
		}
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main")

		cfg, err := config.Load(opts.Config)
		if err != nil {
			logger.Error("Failed to load camera configuration", "error", err, "path", opts.Config)
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			logger.Error("Invalid camera configuration", "error", err)
			os.Exit(1)
		}

		// Create event bus for in-process event handling
		eventBus := events.New()

		reactor := session.NewReactor(
			session.WithBus(eventBus),
			session.WithLogger(logging.GetLogger("session")),
		)

		// Reconcile sessions whenever the config file changes on disk
		watcher := config.NewConfigWatcher(opts.Config, config.Load, logger)
		watcher.OnReload(func(next config.Config) {
			if err := next.Validate(); err != nil {
				logger.Warn("Ignoring invalid configuration reload", "error", err)
				return
			}
			reactor.Apply(next)
		})

		// Optional embedded NATS server for single-binary deployments
		var natsServer *camnats.Server
		natsURL := opts.NatsURL
		if opts.NatsEmbedded {
			natsServer = camnats.NewServer(camnats.ServerOptions{
				Port:   opts.NatsPort,
				Logger: logging.GetLogger("nats"),
			})
			if natsURL == "" {
				natsURL = natsServer.ClientURL()
			}
		}

		var bridge *camnats.Bridge
		if natsURL != "" {
			bridge = camnats.NewBridge(natsURL, reactor, eventBus, logging.GetLogger("nats"))
		}

		server := api.NewServer(reactor, &api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			PrometheusHandler: promhttp.Handler(),
		})

		hooks.OnStart(func() {
			reactor.Apply(cfg)

			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
			}

			if natsServer != nil {
				if startErr := natsServer.Start(); startErr != nil {
					logger.Error("Failed to start embedded NATS server", "error", startErr)
					os.Exit(1)
				}
			}

			// The bridge is optional wiring, the process keeps running
			// without it when the broker is unreachable.
			if bridge != nil {
				if startErr := bridge.Start(); startErr != nil {
					logger.Warn("NATS bridge unavailable", "error", startErr, "url", natsURL)
				}
			}

			systemd.NotifyReady(logger)
			if interval := systemd.WatchdogInterval(); interval > 0 {
				go func() {
					ticker := time.NewTicker(interval)
					defer ticker.Stop()
					for range ticker.C {
						systemd.PingWatchdog()
					}
				}()
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			systemd.NotifyStopping(logger)
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}

			if bridge != nil {
				bridge.Stop()
			}
			if natsServer != nil {
				natsServer.Stop()
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Error("Error stopping config watcher", "error", stopErr)
			}

			// Hang up every session last so consumers observe the closures
			// before the process exits.
			reactor.Shutdown()
		})
	})

	cli.Root().AddCommand(cmd.CreateCheckCmd())
	cli.Root().AddCommand(cmd.CreateControlCmd())

	cli.Run()
}
