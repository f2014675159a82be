package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/pomelo/internal/config"
	"github.com/vango-dev/pomelo/pkg/client"
)

func listenCmd(flags *connFlags) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "listen [route...]",
		Short: "Print pushes and connection events",
		Long: `Connect and print every push until interrupted.

With route arguments only pushes on those routes are printed. Kicks,
errors, closes and reconnects are always printed.

With --metrics-addr, /metrics (Prometheus) and /healthz are served while
listening.

Examples:
  pomelo listen
  pomelo listen onChat onAdd --reconnect
  pomelo listen --metrics-addr :9100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			return runListen(cmd.Context(), cmd.OutOrStdout(), cfg, flags.logger(cmd), args)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")

	return cmd
}

func runListen(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, routes []string) error {
	reg := prometheus.NewRegistry()
	s, err := newSession(cfg, logger, reg)
	if err != nil {
		return err
	}
	defer s.Disconnect()

	p := newPrinter(out, !cfg.Reconnect.Enabled)
	p.watch(s, routes)

	if err := dial(ctx, s, cfg); err != nil {
		return err
	}
	success(out, "Connected to %s", cfg.URL())

	// A clean close ends the session goroutine without an error, so the
	// metrics server is stopped through stop rather than the group.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	group, gctx := errgroup.WithContext(runCtx)

	if cfg.Metrics.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Handler:           metricsRouter(reg, s),
			ReadHeaderTimeout: 5 * time.Second,
		}
		info(out, "Metrics on http://%s/metrics", ln.Addr())

		group.Go(func() error {
			if err := srv.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		defer stop()
		select {
		case <-gctx.Done():
			s.Disconnect()
			return nil
		case err := <-p.ended:
			return err
		case <-s.Done():
			return p.lastError()
		}
	})

	err = group.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// metricsRouter serves the session's Prometheus registry and a readiness
// probe.
func metricsRouter(reg *prometheus.Registry, s *client.Session) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state := s.State()
		if state != client.StateReady {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, state)
	})

	return r
}

// printer writes session events as they arrive.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	last error

	// ended receives the close cause when the session will not reconnect,
	// either because reconnect is off or its attempts ran out.
	ended chan error
	final bool
}

func newPrinter(out io.Writer, final bool) *printer {
	return &printer{out: out, ended: make(chan error, 1), final: final}
}

func (p *printer) watch(s *client.Session, routes []string) {
	if len(routes) == 0 {
		s.Subscribe(client.EventMessage, func(ev client.Event) {
			p.printf("%s %s", ev.Route, ev.Body)
		})
	} else {
		for _, route := range routes {
			route := route
			s.On(route, func(body []byte) {
				p.printf("%s %s", route, body)
			})
		}
	}

	s.Subscribe(client.EventKick, func(ev client.Event) {
		p.printf("kick %s", ev.Body)
	})
	s.Subscribe(client.EventError, func(ev client.Event) {
		p.mu.Lock()
		p.last = ev.Err
		p.mu.Unlock()
		p.printf("error %v", ev.Err)
		if stderrors.Is(ev.Err, client.ErrReconnectExhausted) {
			p.end(ev.Err)
		}
	})
	s.Subscribe(client.EventHeartbeatTimeout, func(client.Event) {
		p.printf("heartbeat timeout")
	})
	s.Subscribe(client.EventClose, func(ev client.Event) {
		if ev.Err != nil {
			p.printf("closed: %v", ev.Err)
		} else {
			p.printf("closed")
		}
		if p.final {
			p.end(ev.Err)
		}
	})
	s.Subscribe(client.EventReconnect, func(client.Event) {
		p.printf("reconnected")
	})
}

// end reports that the session will not come back on its own.
func (p *printer) end(err error) {
	select {
	case p.ended <- err:
	default:
	}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) lastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return client.ErrClosed
	}
	return p.last
}
