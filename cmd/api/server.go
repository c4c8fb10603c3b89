package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"codenetic/internal/shared/config"
	"codenetic/internal/shared/middleware"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Handler      http.Handler
	Addr         string
	TLSEnabled   bool
	CertPath     string
	KeyPath      string
	RedirectHTTP bool
	AllowedHosts []string
}

// Servers groups the running listeners. Errs receives the first fatal
// listener error.
type Servers struct {
	Main     *http.Server
	Redirect *http.Server
	Errs     chan error
}

// StartServers creates and starts the main server and optional redirect server.
func StartServers(scfg ServerConfig, log *zap.Logger) *Servers {
	s := &Servers{
		Main: &http.Server{
			Addr:        scfg.Addr,
			Handler:     scfg.Handler,
			ReadTimeout: 15 * time.Second,
			// Publishing waits for the media container, so writes get more room.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Errs: make(chan error, 2),
	}

	// Start HTTP redirect server if TLS redirect is enabled
	if scfg.TLSEnabled && scfg.RedirectHTTP {
		s.Redirect = createRedirectServer(scfg.AllowedHosts)
		go func() {
			log.Info("HTTP redirect server starting", zap.String("addr", s.Redirect.Addr))
			if err := s.Redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP redirect server error", zap.Error(err))
			}
		}()
	}

	go func() {
		var err error
		if scfg.TLSEnabled {
			log.Info("HTTPS server starting", zap.String("addr", scfg.Addr))
			err = s.Main.ListenAndServeTLS(scfg.CertPath, scfg.KeyPath)
		} else {
			log.Info("HTTP server starting", zap.String("addr", scfg.Addr))
			err = s.Main.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Errs <- err
		}
	}()

	return s
}

// GracefulShutdown stops accepting connections and waits for in-flight
// requests up to timeout.
func GracefulShutdown(s *Servers, timeout time.Duration, log *zap.Logger) {
	log.Info("Server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.Redirect != nil {
		if err := s.Redirect.Shutdown(ctx); err != nil {
			log.Error("Error shutting down HTTP redirect server", zap.Error(err))
		}
	}

	if err := s.Main.Shutdown(ctx); err != nil {
		log.Error("Error shutting down main server", zap.Error(err))
	}

	log.Info("Server stopped")
}

// createRedirectServer creates an HTTP server that redirects all requests to HTTPS.
func createRedirectServer(allowedHosts []string) *http.Server {
	redirectHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Header.Get("X-Forwarded-Host")
		if host == "" {
			host = r.Host
		}

		if !middleware.IsHostAllowed(host, allowedHosts) {
			http.Error(w, "Invalid host", http.StatusBadRequest)
			return
		}

		httpsURL := "https://" + canonicalHost(host) + r.RequestURI
		http.Redirect(w, r, httpsURL, http.StatusMovedPermanently)
	})

	return &http.Server{
		Addr:         ":80",
		Handler:      redirectHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// canonicalHost drops the port. IPv6 literals keep their brackets.
func canonicalHost(host string) string {
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if strings.Contains(h, ":") {
		return "[" + h + "]"
	}
	return h
}

// NewServerConfigFromConfig creates ServerConfig from application config.
func NewServerConfigFromConfig(handler http.Handler, cfg *config.Config) ServerConfig {
	return ServerConfig{
		Handler:      handler,
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		TLSEnabled:   cfg.TLS.Enabled,
		CertPath:     cfg.TLS.CertPath,
		KeyPath:      cfg.TLS.KeyPath,
		RedirectHTTP: cfg.TLS.RedirectHTTP,
		AllowedHosts: cfg.Server.AllowedHosts,
	}
}
