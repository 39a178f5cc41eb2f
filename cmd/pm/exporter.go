// Copyright (C) 2024-2026 ZenStates-Core contributors
// SPDX-License-Identifier: BSD-3-Clause

package pm

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kagashini/ZenStates-Core/internal/zen"
)

var pmValueGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "zenstates_pm_value",
		Help: "Power telemetry table entries by table index",
	},
	[]string{"index"},
)

var pmRefreshErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "zenstates_pm_refresh_errors_total",
		Help: "Power table refreshes that failed and kept the previous sample",
	},
)

var sviGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "zenstates_svi_raw",
		Help: "Raw SVI2 telemetry dwords by power rail",
	},
	[]string{"rail"},
)

// serveMetrics starts the prometheus HTTP endpoint and refreshes the power
// table on every tick until the process is interrupted.
func serveMetrics(controller *zen.Controller, listenAddr string, interval time.Duration) error {
	prometheus.MustRegister(pmValueGaugeVec)
	prometheus.MustRegister(pmRefreshErrors)
	prometheus.MustRegister(sviGaugeVec)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("Starting prometheus metrics server", slog.String("address", listenAddr))
	server := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("prometheus HTTP server ListenAndServe error", slog.String("error", err.Error()))
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		updateMetrics(controller)
		<-ticker.C
	}
}

func updateMetrics(controller *zen.Controller) {
	if err := controller.RefreshPowerTable(); err != nil {
		pmRefreshErrors.Inc()
		slog.Warn("power table refresh failed", slog.String("error", err.Error()))
	}
	for i, v := range controller.PowerTable().Values() {
		pmValueGaugeVec.WithLabelValues(indexLabel(i)).Set(float64(v))
	}
	if core, soc, err := controller.SviTelemetry(); err == nil {
		sviGaugeVec.WithLabelValues("core").Set(float64(core))
		sviGaugeVec.WithLabelValues("soc").Set(float64(soc))
	}
}

// indexLabel caches the formatted label strings; the table has a few
// hundred entries refreshed every tick.
var indexLabels []string

func indexLabel(i int) string {
	for len(indexLabels) <= i {
		indexLabels = append(indexLabels, strconv.Itoa(len(indexLabels)))
	}
	return indexLabels[i]
}
