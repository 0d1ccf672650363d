package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/catstoryflow/internal/app"
)

var (
	cfgFile  string
	logLevel string
	logJSON  bool

	v      = app.NewViper()
	logger = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "catstory",
	Short: "Turn documents into cat narratives and render them as PDFs",
	Long: `catstory runs the document pipeline on this machine.

An uploaded document moves through four stages:
  - text extraction (DOCX, PPTX, PDF)
  - cat narrative conversion through the configured LLM backend
  - chapter structuring
  - PDF rendering

Projects and artifacts are kept under the data directory (default: ./.catstory).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			// Not fatal, the environment may be set some other way.
			fmt.Fprintln(os.Stderr, "Couldn't load .env file:", err)
		}
		l, err := app.NewLogger(os.Stderr, logLevel, logJSON)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(logger)
		return app.ReadConfigFile(v, cfgFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (yaml, json or toml)",
	)
	rootCmd.PersistentFlags().String(
		"narrator", app.BackendOpenAI, "narrator backend: openai, vertex or echo",
	)
	rootCmd.PersistentFlags().String(
		"data-dir", ".catstory", "directory for the database and stored files",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)
	rootCmd.PersistentFlags().BoolVar(
		&logJSON, "log-json", false, "log as JSON",
	)
	cobra.CheckErr(v.BindPFlag("narrator_backend", rootCmd.PersistentFlags().Lookup("narrator")))
	cobra.CheckErr(v.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir")))

	rootCmd.AddCommand(runCmd, statusCmd, listCmd, regenerateCmd, resumeCmd, deleteCmd, exportCmd, narratorCmd)
}

// openApp loads the merged configuration and starts the local pipeline.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := app.Load(v)
	if err != nil {
		return nil, err
	}
	return app.NewLocal(cmd.Context(), cfg, logger)
}
