package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/tidewire/internal/dependency"
	"github.com/crystaldolphin/tidewire/internal/shared/cmdutils"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the dispatch event server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (default from config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	container, err := loadContainer()
	if err != nil {
		return err
	}
	defer container.Close()

	cfg := container.Config()
	host, port := cfg.Server.Host, cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           newServeMux(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return container.Emitter().Run(gctx) })
	g.Go(func() error { return container.CronService().Start(gctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		container.Hub().Close()
		return srv.Shutdown(shutdownCtx)
	})

	fmt.Printf("%s Serving on http://%s (events at /events, metrics at /metrics). Press Ctrl+C to stop.\n", logo, addr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

func newServeMux(c *dependency.Container) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/events", c.Hub())
	mux.Handle("/metrics", promhttp.HandlerFor(c.Metrics().Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": version})
	})
	mux.HandleFunc("GET /tools", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Dispatcher().Definitions(c.Config().Tools.AllowTools))
	})
	mux.HandleFunc("GET /terminals", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Terminals().List())
	})
	mux.HandleFunc("GET /files/recent", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, c.RecentFiles().List(n))
	})
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Session string `json:"session"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"session\",\"message\"}"})
			return
		}
		if req.Session == "" {
			req.Session = "http:default"
		}
		loop, err := c.AgentLoop()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		reply, err := loop.ProcessDirect(r.Context(), req.Message, req.Session, nil)
		if err != nil {
			slog.Warn("Chat request failed", "session", req.Session, "err", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"session": req.Session, "reply": reply})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := cmdutils.WriteJSON(w, v); err != nil {
		slog.Debug("Response write failed", "err", err)
	}
}
