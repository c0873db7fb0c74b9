package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dailybrief/internal/config"
	"dailybrief/internal/logger"
	"dailybrief/internal/pipeline"
)

var (
	runDate        string
	runSourcesDir  string
	runOutputRoot  string
	runRegistryURL string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate the briefing for one report date",
	Long: `Run executes the full pipeline: gather, analyze, synthesize,
illustrate, and write the day's artifacts. The report date defaults to
today in the report time zone; pass --date or set RUN_DATE to backfill
a past day.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runPipeline())
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "report date YYYY-MM-DD (default today; RUN_DATE honored)")
	runCmd.Flags().StringVar(&runSourcesDir, "sources", "config/sources", "source list directory")
	runCmd.Flags().StringVar(&runOutputRoot, "output", "", "artifact root (default web/data)")
	runCmd.Flags().StringVar(&runRegistryURL, "release-registry", "", "external model-release registry URL")
	rootCmd.AddCommand(runCmd)
}

func runPipeline() int {
	date := runDate
	if date == "" {
		date = os.Getenv("RUN_DATE")
	}
	if date == "" {
		var err error
		date, err = pipeline.DefaultReportDate()
		if err != nil {
			logger.Error("resolving report date", err)
			return 1
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("loading configuration", err, "path", configPath)
		return pipeline.ExitCode(nil, err)
	}

	p, err := pipeline.New(cfg, pipeline.Options{
		SourcesDir:  runSourcesDir,
		OutputRoot:  runOutputRoot,
		RegistryURL: runRegistryURL,
	})
	if err != nil {
		logger.Error("assembling pipeline", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := p.Run(ctx, date)
	if err != nil {
		logger.Error("run aborted", err, "date", date)
	}
	return pipeline.ExitCode(report, err)
}
