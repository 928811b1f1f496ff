package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/heptiolabs/healthcheck"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zako_server/config"
	"zako_server/geo"
	"zako_server/metrics"
	"zako_server/middleware"
	"zako_server/routes"
	"zako_server/services"
	"zako_server/store"
	"zako_server/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address, e.g. :8080")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	log, done, err := newLogger()
	if err != nil {
		return err
	}
	defer done()

	tracing, err := telemetry.Setup(cfg.Tracing.Enabled, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Opening store", zap.String("driver", cfg.Store.Driver))
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if n, err := st.CountParticipants(ctx); err != nil {
		log.Warn("Could not seed participant gauge", zap.Error(err))
	} else {
		metrics.Participants.Set(float64(n))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newHandler(cfg, st, log),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	healthSrv := &http.Server{
		Addr:              cfg.Health.Addr,
		Handler:           newHealthHandler(st),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	listen := func(name string, s *http.Server) {
		log.Info("Starting listener", zap.String("listener", name), zap.String("addr", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listener: %w", name, err)
		}
	}
	go listen("api", srv)
	go listen("health", healthSrv)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errCh:
		log.Error("Listener failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = errors.Join(runErr,
		srv.Shutdown(shutdownCtx),
		healthSrv.Shutdown(shutdownCtx),
		tracing.Shutdown(shutdownCtx))
	log.Info("Server stopped")
	return err
}

// newHandler assembles services, routes and middleware around st.
func newHandler(c config.Config, st store.Store, log *zap.Logger) http.Handler {
	var lookup services.GeoLookup
	if c.Geo.Enabled {
		lookup = geo.New(geo.Options{
			Endpoint: c.Geo.Endpoint,
			Timeout:  c.Geo.Timeout,
			CacheTTL: c.Geo.CacheTTL,
			Logger:   log,
		})
	}

	sessions := &middleware.Sessions{
		CookieName:       c.Session.CookieName,
		ClientCookieName: c.Session.ClientCookieName,
		Secure:           c.Session.SecureCookie,
	}
	resolver := &services.IdentityResolver{Store: st, Log: log}
	registration := &services.RegistrationService{
		Store:    st,
		Resolver: resolver,
		Metadata: &services.MetadataCollector{Geo: lookup, Log: log},
		Log:      log,
	}
	deletion := &services.DeletionService{Store: st, Log: log}
	listing := &services.ListingService{Store: st}
	likes := &services.LikeService{Store: st, Log: log}
	profiles := &services.ProfileService{Store: st, Log: log}

	r := mux.NewRouter()
	r.Handle(c.Metrics.Path, metrics.Handler()).Methods("GET")
	routes.RegisterRoutes(r)
	routes.RegisterParticipantRoutes(r, sessions, resolver, registration, deletion, listing)
	routes.RegisterLikeRoutes(r, sessions, resolver, likes)
	routes.RegisterProfileRoutes(r, sessions, resolver, profiles)
	r.Use(
		middleware.Timeout(c.Server.RequestTimeout),
		sessions.Middleware,
	)

	handler := cors.New(cors.Options{
		AllowedOrigins:   c.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.ClientIDHeader},
		AllowCredentials: true,
	}).Handler(r)
	return middleware.Recovery(log)(middleware.RequestLogger(log, r)(handler))
}

// newHealthHandler serves /live and /ready.
func newHealthHandler(st store.Store) healthcheck.Handler {
	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(1000))
	health.AddReadinessCheck("store", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return st.Ping(ctx)
	})
	return health
}
