// Admin exposes an HTTP surface for operators: a liveness probe and
// Prometheus metrics, neither part of the RESP protocol itself. Grounded
// on cc-backend's use of gorilla/mux for routing and prometheus/
// client_golang for instrumentation, with gopsutil reporting host memory
// the way the teacher's mem.go already did for its own status command.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/ClaytonFelipe/Altilium-db/internal/bus"
	"github.com/ClaytonFelipe/Altilium-db/internal/snapshot"
	"github.com/ClaytonFelipe/Altilium-db/internal/store"
)

// Metrics holds the Prometheus collectors the admin surface exposes.
type Metrics struct {
	StoreKeys           prometheus.GaugeFunc
	ConnectionsActive   prometheus.GaugeFunc
	CommandsTotal       *prometheus.CounterVec
	BusLagTotal         prometheus.GaugeFunc
	SnapshotLastSuccess prometheus.GaugeFunc
	HostMemPct          prometheus.GaugeFunc
}

// NewMetrics registers Altilium's gauges and counters against reg,
// sampling srv, b, s, snapStatus, and the host's memory on every scrape.
// It also wires srv.commandsTotal so the dispatch loop can increment the
// per-command counter as commands are served.
func NewMetrics(reg *prometheus.Registry, srv *Server, b *bus.Bus, s *store.Store, snapStatus *snapshot.Status) *Metrics {
	m := &Metrics{}

	m.StoreKeys = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "altilium",
		Name:      "store_keys",
		Help:      "Number of keys currently held in the store, including expired-but-not-yet-swept entries.",
	}, func() float64 { return float64(s.Len()) })

	m.ConnectionsActive = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "altilium",
		Name:      "connections_active",
		Help:      "Number of client connections currently open.",
	}, func() float64 { return float64(srv.ActiveConnections()) })

	m.CommandsTotal = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "altilium",
		Name:      "commands_total",
		Help:      "Total number of commands dispatched, labeled by command name.",
	}, []string{"command"})
	srv.commandsTotal = m.CommandsTotal

	// bus.LagTotal is monotonically increasing, making it conceptually a
	// counter; it is exposed as a GaugeFunc because client_golang's
	// promauto helper has no NewCounterFuncVec/NewCounterFunc wrapper
	// analogous to NewGaugeFunc for sampling an externally-owned value.
	m.BusLagTotal = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "altilium",
		Name:      "bus_lag_total",
		Help:      "Cumulative number of command bus deliveries that found a subscriber queue already full.",
	}, func() float64 { return float64(b.LagTotal()) })

	m.SnapshotLastSuccess = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "altilium",
		Name:      "snapshot_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful snapshot save, or 0 if none has succeeded yet.",
	}, func() float64 { return float64(snapStatus.LastSuccessUnix()) })

	m.HostMemPct = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "altilium",
		Name:      "host_memory_used_percent",
		Help:      "Host memory utilization as reported by gopsutil.",
	}, func() float64 {
		v, err := mem.VirtualMemory()
		if err != nil {
			return 0
		}
		return v.UsedPercent
	})
	return m
}

// AdminServer serves /healthz and /metrics on a separate bind address
// from the RESP listener, so operational tooling never contends with the
// client protocol port.
type AdminServer struct {
	httpSrv *http.Server
}

func NewAdminServer(addr string, srv *Server, b *bus.Bus, s *store.Store, snapStatus *snapshot.Status) *AdminServer {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, srv, b, s, snapStatus)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"keys":   s.Len(),
		})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &AdminServer{httpSrv: &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Run starts the admin HTTP server and blocks until ctx is cancelled.
func (a *AdminServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
