// Command derive applies a rule file to a record file from the command line.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/derive/internal/config"
	"github.com/liamcoop/derive/internal/logger"
)

var (
	rulesPath   string
	recordsPath string
	outputPath  string
	limit       int
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "derive",
	Short: "Compute derived fields over a record collection",
	Long: `derive runs an ordered list of transformation rules over records
exported from the screening service and writes the transformed records
together with a run summary.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout carries the result
		logger.SetOutput(cmd.ErrOrStderr())
		if verbose {
			logger.SetLevel(logger.LevelDebug)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rulesPath, "rules", "r", "", "rule file (YAML or JSON array)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("rules")

	applyCmd.Flags().StringVarP(&recordsPath, "records", "i", "", "record file (JSON array)")
	applyCmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the result here instead of stdout")
	applyCmd.Flags().IntVarP(&limit, "limit", "n", 0, "only write the first n records")
	_ = applyCmd.MarkFlagRequired("records")

	rootCmd.AddCommand(applyCmd, validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Warn("ignoring invalid configuration", "error", err)
		return config.Default()
	}
	return cfg
}
