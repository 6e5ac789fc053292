package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/errors"
	"github.com/rohankatakam/mailgraph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var structured *errors.Error
		if verbose && stderrors.As(err, &structured) {
			fmt.Fprint(os.Stderr, structured.DetailedString())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailgraph",
	Short: "mailgraph - Exchange mailbox to entity graph ingestion",
	Long: `mailgraph reads a mailbox through the Microsoft Graph API and records
messages, addresses, domains, conversations and attachments as an
idempotent entity/relationship graph.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := logging.ParseLevel(cfg.Log.Level)
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
		if verbose {
			level = logging.DEBUG
			logger.SetLevel(logrus.DebugLevel)
		}

		return logging.Initialize(logging.Config{
			Level:      level,
			OutputFile: cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			JSONFormat: cfg.Log.JSON,
			AddSource:  verbose,
			Stdout:     os.Stderr,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.mailgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`mailgraph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
}
