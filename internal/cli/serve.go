package cli

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilupskalvis/dasch-science/internal/config"
	"github.com/kilupskalvis/dasch-science/internal/server"
)

var (
	serveListen  string
	serveTLSCert string
	serveTLSKey  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the archive query server",
	Long: `Run the archive query server.

The server answers cutout, catalog and exposure queries over HTTP from the
stores under data_dir. The plate database is opened read-only, so several
servers can share one data directory.

Examples:
  dasch-science serve
  dasch-science serve --listen 127.0.0.1:8730
  dasch-science serve --config /etc/dasch/dasch.toml --tls-cert server.crt --tls-key server.key`,
	Run: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", "", "Listen address, overrides the config file (host:port)")
	f.StringVar(&serveTLSCert, "tls-cert", os.Getenv("DASCH_TLS_CERT"), "TLS certificate file")
	f.StringVar(&serveTLSKey, "tls-key", os.Getenv("DASCH_TLS_KEY"), "TLS key file")
}

func runServe(_ *cobra.Command, _ []string) {
	cfg := initContext().Config
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	logger := cfg.NewLogger(os.Stdout)

	if err := Serve(context.Background(), cfg, logger, serveTLSCert, serveTLSKey); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// Serve runs the query server described by cfg until ctx is done or the
// process receives SIGINT or SIGTERM, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, tlsCert, tlsKey string) error {
	stores, svc, err := openLocal(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer stores.Close()

	scfg := server.DefaultServerConfig()
	scfg.RatePerSecond = cfg.RateLimit
	scfg.RateBurst = cfg.RateBurst

	h, handlerCleanup := server.Handler(svc, scfg, logger)
	defer handlerCleanup()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return context.Background() },
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting dasch-science server", "listen", cfg.Listen, "data_dir", cfg.DataDir,
			"catalog_backend", cfg.CatalogBackend)
		var err error
		if tlsCert != "" && tlsKey != "" {
			err = srv.ListenAndServeTLS(tlsCert, tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
