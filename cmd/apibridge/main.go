// Command apibridge is the policy-driven HTTP API gateway server.
//
// It reads ambient configuration from environment variables (or a .env
// file) and a declarative connector policy file, then starts the proxy on
// the configured port.
//
// Quick-start (in-memory cache and rate limiting, no Redis required):
//
//	CONNECTORS_FILE=connectors.yaml ./apibridge serve
//
// See config.Config in internal/config for all available configuration
// variables.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nulpointcorp/apibridge/internal/config"
	"github.com/nulpointcorp/apibridge/internal/logger"
)

// version is overridden at build time via -ldflags="-X main.version=x.y.z".
var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:           "apibridge",
		Short:         "Policy-driven HTTP API gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.RunE = runServe
	root.AddCommand(serveCmd(), validateConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildLogger constructs a JSON slog.Logger for the given level string,
// wrapped in logger.SanitizingHandler so secret-shaped attribute values
// never reach the sink. Unknown level strings default to INFO.
func buildLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     l,
		AddSource: l == slog.LevelDebug,
	})

	return slog.New(logger.NewSanitizingHandler(base))
}

func loadConfigOrDie() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
