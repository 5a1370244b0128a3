// Command dasch-science-server runs the DASCH archive query server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/kilupskalvis/dasch-science/internal/cli"
	"github.com/kilupskalvis/dasch-science/internal/config"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("DASCH_CONFIG"), "Config file (default: ./"+config.ConfigFile+" when present)")
	listen := flag.String("listen", "", "Listen address, overrides the config file")
	tlsCert := flag.String("tls-cert", os.Getenv("DASCH_TLS_CERT"), "TLS certificate file")
	tlsKey := flag.String("tls-key", os.Getenv("DASCH_TLS_KEY"), "TLS key file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logger := cfg.NewLogger(os.Stdout)
	if err := cli.Serve(context.Background(), cfg, logger, *tlsCert, *tlsKey); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
