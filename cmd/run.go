package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/model"
)

var (
	runQuery         string
	runPhrasings     []string
	runEntityType    string
	runMaxCandidates int
	runBudgetSecs    int
	runConcurrency   int
	runMinConfidence float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single acquisition goal",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		goal := model.Goal{
			Query:      runQuery,
			Phrasings:  runPhrasings,
			EntityType: runEntityType,
		}
		constraints := constraintsFromConfig()
		if runMaxCandidates > 0 {
			constraints.MaxCandidates = runMaxCandidates
		}
		if runBudgetSecs > 0 {
			constraints.MaxWallClock = time.Duration(runBudgetSecs) * time.Second
		}
		if runConcurrency > 0 {
			constraints.MaxConcurrent = runConcurrency
		}
		if cmd.Flags().Changed("min-confidence") {
			constraints.MinConfidence = runMinConfidence
		}

		result, err := env.Orchestrator.Run(ctx, goal, constraints)
		if err != nil {
			return eris.Wrap(err, "run goal")
		}

		zap.L().Info("run complete",
			zap.Int("candidates", result.Candidates),
			zap.Int("fetches", result.FetchesIssued),
			zap.Int("entities", len(result.Entities)),
			zap.Bool("budget_exhausted", result.BudgetExhausted),
			zap.Duration("elapsed", result.Elapsed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// constraintsFromConfig builds run constraints from configured defaults.
func constraintsFromConfig() model.Constraints {
	return model.Constraints{
		MaxCandidates: cfg.Run.MaxCandidates,
		MaxWallClock:  cfg.Run.MaxWallClock(),
		MaxConcurrent: cfg.Run.MaxConcurrent,
		MinConfidence: cfg.Run.MinConfidence,
	}
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", "", "discovery goal, e.g. \"pottery suppliers in Asheville\"")
	runCmd.Flags().StringSliceVar(&runPhrasings, "phrasing", nil, "additional query phrasing (repeatable)")
	runCmd.Flags().StringVar(&runEntityType, "entity-type", "", "expected subject kind (supplier, event, trend)")
	runCmd.Flags().IntVar(&runMaxCandidates, "max-candidates", 0, "candidate URL cap (default from config)")
	runCmd.Flags().IntVar(&runBudgetSecs, "budget", 0, "wall-clock budget in seconds (default from config)")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "max concurrent fetches (default from config)")
	runCmd.Flags().Float64Var(&runMinConfidence, "min-confidence", 0, "drop entities below this confidence")
	_ = runCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(runCmd)
}
