package main

// @title           Sercha Ingest API
// @version         1.0
// @description     Document ingestion pipeline. Items are extracted, chunked, optionally embedded and indexed by background workers.

// @contact.name   Sercha OSS
// @contact.url    https://github.com/custodia-labs/sercha-ingest/issues

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token. Format: "Bearer {token}"

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/custodia-labs/sercha-ingest/docs"
	"github.com/custodia-labs/sercha-ingest/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// skipConfigAnnotation marks commands that run without loading configuration
const skipConfigAnnotation = "skip-config"

var (
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sercha-ingest",
	Short: "Sercha Ingest - document ingestion pipeline",
	Long: `Sercha Ingest turns uploaded items into searchable chunks.

Items are extracted, split into token-bounded chunks, optionally embedded and
written to the index by background workers. The HTTP API submits, cancels
and retries processing and reports item and task state.

Available commands:
  serve    - Run the HTTP API
  worker   - Run task workers and the stale task reaper
  all      - Run the API and workers in one process
  migrate  - Create or update the database schema
  token    - Issue API tokens and hash API keys
  version  - Show version information

Configuration is read from --config, ./sercha-ingest.yaml or
/etc/sercha-ingest/sercha-ingest.yaml. Environment variables prefixed with
SERCHA_ override file values, e.g. SERCHA_DATABASE_URL.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return nil
		}

		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		cfg = loaded
		logger = cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(allCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
