package cmd

import (
	"log/slog"
	"os"

	"github.com/mfenderov/blog-harvester/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Blog harvester: collect article links and index their text",
	Long: `Blog harvester crawls a paginated blog listing, stores the article links,
then fetches every article, splits its text into overlapping chunks and
upserts the chunks into Elasticsearch.

Commands:
  collect  Crawl the listing and write the link collection
  harvest  Fetch collected links and index their chunks
  run      Collect, then harvest
  search   Search indexed chunks
  serve    Start the MCP server for chunk retrieval`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with index credentials")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func loadConfig(cmd *cobra.Command, args []string) error {
	initLogger()

	loaded, err := config.Load(config.Options{File: cfgFile, EnvFile: envFile})
	if err != nil {
		return err
	}
	cfg = loaded

	slog.Debug("config loaded", "index", cfg.Elasticsearch.Index, "links_backend", cfg.Links.Backend)
	return nil
}
