// Command clipbridged is the clipbridge background daemon: one process
// per device, holding the catalog, CAS, and connection supervisor for
// the lifetime of the machine's clipbridge session.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipbridge/clipbridge/pkg/config"
	"github.com/clipbridge/clipbridge/pkg/controlapi"
	"github.com/clipbridge/clipbridge/pkg/core"
	"github.com/clipbridge/clipbridge/pkg/log"
	"github.com/clipbridge/clipbridge/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "clipbridged",
	Short:   "clipbridge background daemon",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := log.WithComponent("daemon")
		logger.Info().
			Str("device_id", cfg.DeviceID).
			Str("account_tag", cfg.AccountTag).
			Str("data_dir", cfg.DataDir).
			Msg("starting clipbridged")

		coreHandle, err := core.Init(cfg, metrics.Recorder{})
		if err != nil {
			return fmt.Errorf("init core: %w", err)
		}

		controlSrv, err := controlapi.NewServer(cfg.ControlSocketPath, coreHandle)
		if err != nil {
			coreHandle.Shutdown()
			return fmt.Errorf("start control socket: %w", err)
		}
		go func() {
			if err := controlSrv.Serve(); err != nil {
				logger.Debug().Err(err).Msg("control socket stopped serving")
			}
		}()

		eventsSrv, err := controlapi.NewEventsServer(cfg.EventsSocketPath, coreHandle.Events())
		if err != nil {
			controlSrv.Close()
			coreHandle.Shutdown()
			return fmt.Errorf("start events socket: %w", err)
		}
		go func() {
			if err := eventsSrv.Serve(); err != nil {
				logger.Debug().Err(err).Msg("events socket stopped serving")
			}
		}()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("catalog", true, "ok")
		metrics.RegisterComponent("cas", true, "ok")
		metrics.RegisterComponent("transport", true, "ok")

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/health", metrics.HealthHandler())
			mux.Handle("/ready", metrics.ReadyHandler())
			mux.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutting down")
		eventsSrv.Close()
		controlSrv.Close()
		coreHandle.Shutdown()
		return nil
	},
}

func init() {
	runCmd.Flags().String("config", defaultConfigPath(), "Path to the device config file")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP endpoint")
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.clipbridge/config.yaml"
}
