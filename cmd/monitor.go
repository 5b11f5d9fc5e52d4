package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	cmd_commons "github.com/cyverse/cachekit/cmd/commons"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func processMonitorCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processMonitorCommand",
	})

	config, cleanup, cont, err := prepare(command)
	defer cleanup()
	if err != nil || !cont {
		return err
	}

	logger = logger.WithField("instance", config.InstanceID)

	interval, err := command.Flags().GetInt("interval")
	if err != nil {
		return err
	}

	if interval > 0 {
		config.MonitorInterval = interval
	}

	prometheusExporterPort, err := command.Flags().GetInt("prometheus_exporter_port")
	if err != nil {
		return err
	}

	if command.Flags().Changed("prometheus_exporter_port") || config.PrometheusExporterPort <= 0 {
		config.PrometheusExporterPort = prometheusExporterPort
	}

	diskCache, err := cmd_commons.OpenDiskCache(config)
	if err != nil {
		return err
	}

	var prometheusExporterServer *http.Server
	if config.PrometheusExporterPort > 0 {
		prometheusExporterAddr := fmt.Sprintf(":%d", config.PrometheusExporterPort)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		prometheusExporterServer = &http.Server{Addr: prometheusExporterAddr, Handler: mux}

		go func() {
			logger.Infof("Starting prometheus exporter at %s", prometheusExporterAddr)
			err := prometheusExporterServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("prometheus exporter stopped")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(time.Duration(config.MonitorInterval) * time.Second)
		defer ticker.Stop()

		for {
			purged, err := diskCache.Purge()
			if err != nil {
				logger.WithError(err).Error("failed to purge expired cache files")
			}

			cmd_commons.UpdateMetrics(diskCache)

			logger.Infof("Purged %d expired files, %d files (%s) remain in %s", purged, diskCache.GetCacheCount(), humanize.Bytes(uint64(diskCache.GetCacheSize())), diskCache.GetRootPath())

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// wait
	waitForCtrlC()

	cancel()
	<-done

	if prometheusExporterServer != nil {
		prometheusExporterServer.Shutdown(context.TODO())
	}

	return nil
}
