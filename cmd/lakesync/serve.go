package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/exploopio/lakesync/pkg/health"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Sync the search indices on an interval and serve metrics and health probes",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	collector, err := metrics.NewPrometheusCollector(nil)
	if err != nil {
		return err
	}
	a, err := newApp(collector)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	backend, err := a.newBackend()
	if err != nil {
		return err
	}
	jobs, err := a.jobs(backend, st, a.cfg.Serve.Jobs...)
	if err != nil {
		return err
	}

	var lastSync atomic.Int64
	probes := health.NewHandler(health.WithVersion(Version))
	probes.Register("store", health.PingCheck(st.Ping))
	probes.RegisterOptional("search", health.PingCheck(backend.Ping))
	probes.RegisterOptional("last_sync", &health.SyncAgeCheck{
		Last: func() time.Time {
			if ns := lastSync.Load(); ns > 0 {
				return time.Unix(0, ns)
			}
			return time.Time{}
		},
		MaxAge: 3 * a.cfg.Serve.Interval,
	})
	if a.cfg.Database.Driver == "" || a.cfg.Database.Driver == string(store.DialectSQLite) {
		probes.Register("disk", &health.DiskCheck{Path: filepath.Dir(a.cfg.Database.DSN), MinFreePercent: 5})
	}
	probes.RegisterOptional("memory", &health.MemoryCheck{MaxHeapBytes: 2 << 30})

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	probes.Routes(mux)
	srv := &http.Server{
		Addr:              a.cfg.Serve.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving metrics and health on %s", a.cfg.Serve.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	syncAll := func() {
		ok := true
		for _, job := range jobs {
			if _, err := job.Run(ctx); err != nil {
				ok = false
				a.logger.Error("%s index sync failed: %v", job.Name(), err)
			}
		}
		if ok {
			lastSync.Store(time.Now().UnixNano())
		}
	}

	probes.SetReady(true)
	syncAll()

	ticker := time.NewTicker(a.cfg.Serve.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			probes.SetReady(false)
			return shutdown(srv)
		case err := <-errCh:
			return err
		case <-ticker.C:
			syncAll()
		}
	}
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
