// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command imagedeleterd bootstraps the image-deletion coordinator as a
// standalone process: load configuration, wire a Manager on top of the
// rbd CLI removal driver, serve its prometheus metrics, and run until
// signaled. A real rbd-mirror agent would instead embed
// worker/imagedeleter directly and call ScheduleDelete from its own
// replay loop; this binary exists so the coordinator can be exercised,
// inspected and load-tested on its own.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pangfd/ceph/cmd/imagedeleterd/config"
	"github.com/pangfd/ceph/internal/rbdcli"
	"github.com/pangfd/ceph/worker/imagedeleter"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "imagedeleterd",
		Short: "Asynchronous image deletion coordinator for rbd-mirror",
		RunE:  runApp,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "imagedeleterd: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "imagedeleterd.yaml", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "loggo level (trace, debug, info, warning, error)")
	rootCmd.PersistentFlags().Float64("retry-interval-seconds", 0, "seconds between failed-queue retry sweeps")
	rootCmd.PersistentFlags().String("metrics-addr", "", "prometheus listen address")
	rootCmd.PersistentFlags().String("entity-uuid", "", "mirror agent entity uuid, used as the log context")
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return errors.Annotate(err, "failed to load config")
	}
	applyFlags(cmd, cfg)

	if err := loggo.ConfigureLoggers(fmt.Sprintf("<root>=%s", cfg.Log.Level)); err != nil {
		return errors.Annotatef(err, "invalid log-level %q", cfg.Log.Level)
	}
	logger := loggo.GetLogger("imagedeleterd")

	registry := prometheus.NewRegistry()

	manager, err := imagedeleter.NewManager(imagedeleter.ManagerConfig{
		EntityUUID: cfg.EntityUUID,
		Driver: rbdcli.Driver{
			Logger: logger,
		},
		RetryInterval:        cfg.Retry.Interval(),
		PrometheusRegisterer: registry,
		Logger:               logger,
	})
	if err != nil {
		return errors.Annotate(err, "failed to start image deleter")
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logger.Infof("serving metrics on %s", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Infof("shutting down")
	manager.Kill()
	err = manager.Wait()
	if srv != nil {
		_ = srv.Shutdown(context.Background())
	}
	return err
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("retry-interval-seconds").Changed {
		cfg.Retry.IntervalSeconds, _ = cmd.Flags().GetFloat64("retry-interval-seconds")
	}
	if cmd.Flag("metrics-addr").Changed {
		cfg.Metrics.Addr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if cmd.Flag("entity-uuid").Changed {
		cfg.EntityUUID, _ = cmd.Flags().GetString("entity-uuid")
	}
}
