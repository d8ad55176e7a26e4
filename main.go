package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"github.com/miroslavpejic85/mirotalk-admin/internal/auth"
	"github.com/miroslavpejic85/mirotalk-admin/internal/config"
	"github.com/miroslavpejic85/mirotalk-admin/internal/executor"
	"github.com/miroslavpejic85/mirotalk-admin/internal/handlers"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logging"
	"github.com/miroslavpejic85/mirotalk-admin/internal/middleware"
	"github.com/miroslavpejic85/mirotalk-admin/internal/socket"
)

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--hash-password":
			hashPassword()
			return
		case "--generate-jwt-secret":
			generateJWTSecret()
			return
		}
	}

	config.Load()
	cfg := config.Cfg

	logging.Init(logging.Options{Path: cfg.LogPath, Debug: cfg.LogsDebug, JSON: cfg.LogsJSON})
	defer logging.Close()
	log := logging.WithComponent("main")

	catalog, err := config.LoadCatalog(cfg.AppsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load app catalog")
	}
	apps, err := config.NewSelection(catalog, cfg.AppName)
	if err != nil {
		log.Fatal().Err(err).Msg("select app")
	}
	allowList, err := middleware.ParseAllowedIPs(cfg.AllowedIPs)
	if err != nil {
		log.Fatal().Err(err).Msg("parse ADMIN_ALLOWED_IPS")
	}
	if cfg.JWTSecret == "" || cfg.Username == "" || cfg.PasswordHash == "" {
		log.Warn().Msg("ADMIN_JWT_SECRET, ADMIN_USERNAME or ADMIN_PASSWORD_HASH not set; login is disabled")
	}

	log.Info().
		Str("manage_mode", cfg.ManageMode).
		Str("process_manager", cfg.ProcessManager()).
		Str("app", apps.Current().Name).
		Bool("dashboard_enabled", cfg.DashboardEnabled).
		Msg("config loaded")

	authority := auth.NewAuthority(cfg.JWTSecret, cfg.JWTExpiresIn, cfg.Username, cfg.PasswordHash)
	exec := executor.New(cfg)

	api := &handlers.API{
		Auth:           authority,
		Exec:           exec,
		Apps:           apps,
		ManageMode:     cfg.ManageMode,
		ProcessManager: cfg.ProcessManager(),
		Log:            logging.WithComponent("http"),
	}

	terminals := socket.SessionFactory{}
	if cfg.Remote() {
		terminals.Dialer = executor.SSHConfigFrom(cfg)
	}
	dispatcher := socket.NewDispatcher(socket.Options{
		Gate:           socket.NewGate(authority, logging.WithComponent("socket")),
		Executor:       exec,
		Resolve:        api.Resolve,
		Terminals:      terminals,
		Remote:         cfg.Remote(),
		OriginPatterns: cfg.WSOrigins,
		Log:            logging.WithComponent("socket"),
	})

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}

	// Health and metrics (no auth)
	r.Get("/health", api.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RestrictIPs(allowList))
		r.Use(middleware.DashboardEnabled(cfg.DashboardEnabled))

		// Tokens are checked per event.
		r.Get("/ws", dispatcher.ServeHTTP)

		r.Route("/api", func(r chi.Router) {
			r.With(middleware.LoginRateLimit()).Post("/login", api.Login)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(authority))

				r.Get("/getAppNames", api.GetAppNames)
				r.Post("/setAppName", api.SetAppName)

				r.Get("/version", api.Version)
				r.Get("/status", api.Status)
				r.Post("/restart", api.Restart)
				r.Post("/update", api.Update)
				r.Get("/logs", api.Logs)

				r.Get("/checkForServerUpdate", api.CheckForServerUpdate)
				r.Post("/serverReboot", api.ServerReboot)

				r.Get("/env", api.GetEnv)
				r.Post("/env", api.SaveEnv)
				r.Get("/config", api.GetConfig)
				r.Post("/config", api.SaveConfig)

				r.Get("/serverLogs", api.GetServerLogs)
			})
		})
	})

	// Graceful shutdown
	addr := ":" + strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", addr).Msg("dashboard listening on /admin")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-sigCtx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}

// hashPassword prompts for a password and prints its bcrypt hash for
// ADMIN_PASSWORD_HASH.
func hashPassword() {
	fmt.Fprint(os.Stderr, "Enter password to hash: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read password: %v\n", err)
		os.Exit(1)
	}
	if len(password) == 0 {
		fmt.Fprintln(os.Stderr, "password must not be empty")
		os.Exit(1)
	}

	hash, err := auth.HashPassword(string(password))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash password: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ADMIN_PASSWORD_HASH=%q\n", hash)
}

// generateJWTSecret prints a random 64 byte secret for ADMIN_JWT_SECRET.
func generateJWTSecret() {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		fmt.Fprintf(os.Stderr, "generate secret: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ADMIN_JWT_SECRET=%s\n", hex.EncodeToString(b))
}
