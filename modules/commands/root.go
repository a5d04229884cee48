package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"focustrack/modules"
	"focustrack/modules/platform/config"
	"focustrack/modules/platform/daemon"
	"focustrack/modules/platform/logger"
)

var (
	// Global flags
	configPath   string
	instanceName string
	verbose      bool

	logFile *os.File
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   modules.AppName,
	Short: modules.AppDescription,
	Long: `focustrack keeps a focus/break timer in a background daemon and
synchronises it to every connected view.

The daemon owns the timer. Views (this CLI, a browser over WebSocket) open a
channel, ask for the current state and receive every update after that.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.GetGlobalLogger().Sync()
		if logFile != nil {
			logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&instanceName, "name", "n", "", "Daemon instance name")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(focusCmd)
	rootCmd.AddCommand(breakCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command tree
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the config, selects the daemon instance and builds the logger
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadGlobal(configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.GetGlobal()

	name := instanceName
	if name == "" {
		name = cfg.Daemon.Instance
	}
	if err := daemon.ValidateInstanceName(name); err != nil {
		return err
	}
	daemon.SetInstanceName(name)
	daemon.SetBaseDir(cfg.Daemon.Dir)

	return setupLogger(cfg.Logger)
}

func setupLogger(cfg config.LoggerConfig) error {
	level := logger.ParseLevel(cfg.Level)
	if verbose {
		level = logger.DEBUG
	}

	var outputs []io.Writer
	if !daemon.IsDaemonMode() {
		outputs = append(outputs, os.Stderr)
	}

	// A detached daemon has no stderr and always logs to a file
	path := cfg.FilePath
	if path == "" && daemon.IsDaemonMode() {
		path = config.GetDefaultLogPath()
	}
	if path != "" {
		f, err := logger.CreateLogFile(path, cfg.MaxSizeMB)
		if err != nil {
			return err
		}
		logFile = f
		outputs = append(outputs, f)
	}

	logger.SetGlobalLogger(logger.NewLogger(level, outputs))
	return nil
}

// forwardedFlags returns the global flags a re-executed daemon needs
func forwardedFlags() []string {
	var args []string
	if path := config.GetGlobalPath(); path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		args = append(args, "--config", path)
	}
	if name := daemon.GetInstanceName(); name != "" {
		args = append(args, "--name", name)
	}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}
