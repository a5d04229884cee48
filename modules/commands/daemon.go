package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"focustrack/modules"
	"focustrack/modules/core/timer"
	"focustrack/modules/platform/config"
	"focustrack/modules/platform/daemon"
	"focustrack/modules/platform/eventbus"
	"focustrack/modules/platform/logger"
	"focustrack/modules/platform/server"
	"focustrack/modules/platform/system"
)

// metricsRefresh is the sampling period of the /healthz process metrics
const metricsRefresh = 5 * time.Second

// daemonCmd groups the daemon lifecycle commands
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the timer daemon",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Runs the timer controller, the unix socket channel server and (unless
disabled in the config) the HTTP/WebSocket server until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if daemon.IsRunning() {
			fmt.Println(daemon.Status())
			return nil
		}
		pid, err := daemon.StartDaemon(forwardedFlags()...)
		if err != nil {
			return err
		}
		fmt.Printf("Daemon started (PID: %d)\n", pid)
		return nil
	},
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemon.StopDaemon(); err != nil {
			return err
		}
		fmt.Println("Daemon stopped")
		return nil
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(daemon.Status())
		if instances := daemon.ListInstances(); len(instances) > 0 {
			fmt.Printf("Instances: %v\n", instances)
		}
		return nil
	},
}

var daemonWipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Remove socket and PID files left by a crashed daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := daemon.Wipe(); err != nil {
			return err
		}
		fmt.Println("Daemon files removed")
		return nil
	},
}

func init() {
	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonWipeCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.GetGlobal()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.NewBus()
	controller := timer.NewController(cfg.Timer.Defaults(), cfg.Timer.TickInterval, bus)
	hub := daemon.NewHub(controller, bus, cfg.Daemon.QueueSize)
	defer hub.Close()

	logger.Info("%s %s (%s) starting", modules.AppName, modules.AppVersion, modules.BuildRevision())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return controller.Run(gctx)
	})

	g.Go(func() error {
		return daemon.NewServer(hub).Run(gctx)
	})

	if cfg.Server.Enabled {
		auth := server.NewAuthenticator(cfg.Auth)
		if auth == nil {
			logger.Warn("auth.secret is not set: %s is open to any local client", cfg.Server.Addr)
		}
		httpServer := server.NewServer(cfg.Server, hub, controller, auth)

		if metrics, err := system.NewMetricsCollector(metricsRefresh); err != nil {
			logger.Warn("Process metrics disabled: %v", err)
		} else {
			httpServer.SetMetrics(metrics)
			g.Go(func() error {
				return metrics.Run(gctx)
			})
		}

		g.Go(func() error {
			return httpServer.Run(gctx)
		})
	}

	if path := config.GetGlobalPath(); path != "" {
		g.Go(func() error {
			watchConfig(gctx, path, controller)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Daemon stopped")
	return nil
}

// watchConfig applies reloaded timer defaults and log level until ctx is done.
// Other settings need a restart.
func watchConfig(ctx context.Context, path string, controller *timer.Controller) {
	err := config.Watch(ctx, path, func(cfg *config.Config) {
		if err := controller.SetDefaults(cfg.Timer.Defaults()); err != nil {
			logger.Warn("Ignoring reloaded timer defaults: %v", err)
		}
		if !verbose {
			logger.GetGlobalLogger().SetLevel(logger.ParseLevel(cfg.Logger.Level))
		}
		config.SetGlobal(cfg, path)
	})
	if err != nil {
		logger.Warn("Config reload disabled: %v", err)
	}
}
