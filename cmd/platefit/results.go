package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/platefit/internal/store"
	"github.com/spf13/cobra"
)

var (
	resultsOutDir string
	resultsRun    string
	resultsAge    float64
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Inspect committed campaign results",
	Long: `Inspect the per-step result bundles of committed runs, including every
trial's starting parameters and final cost.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, or the committed steps of one run",
	RunE:  runListResults,
}

var showResultsCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the full trial table of one step",
	RunE:  runShowResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(showResultsCmd)

	resultsCmd.PersistentFlags().StringVar(&resultsOutDir, "out-dir", "./out", "Output directory holding result bundles")
	resultsCmd.PersistentFlags().StringVar(&resultsRun, "run", "", "Run identifier")

	showResultsCmd.Flags().Float64Var(&resultsAge, "age", 0, "Step start age in Ma (required)")
	showResultsCmd.MarkFlagRequired("age")
}

func runListResults(cmd *cobra.Command, args []string) error {
	resultStore, err := store.NewFSResultStore(resultsOutDir)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}

	if resultsRun == "" {
		runs, err := resultStore.ListRuns()
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}
		for _, run := range runs {
			fmt.Println(run)
		}
		return nil
	}

	infos, err := resultStore.ListSteps(resultsRun)
	if err != nil {
		return fmt.Errorf("failed to list steps: %w", err)
	}
	if len(infos) == 0 {
		fmt.Println("No committed steps found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START AGE\tEND AGE\tBEST COST\tTRIALS\tCOMMITTED")
	fmt.Fprintln(w, "---------\t-------\t---------\t------\t---------")
	for _, info := range infos {
		fmt.Fprintf(w, "%.1f\t%.1f\t%.6f\t%d\t%s\n",
			info.StartAge,
			info.EndAge,
			info.BestCost,
			info.Trials,
			info.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runShowResults(cmd *cobra.Command, args []string) error {
	if resultsRun == "" {
		return fmt.Errorf("--run is required")
	}
	resultStore, err := store.NewFSResultStore(resultsOutDir)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}

	result, err := resultStore.LoadStep(resultsRun, resultsAge)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s, step %.1f -> %.1f Ma (reference plate %d, %s search, radius %.1f)\n",
		result.RunID, result.StartAge, result.EndAge,
		result.Config.RefPlateID, result.Config.SearchType, result.Config.SearchRadius)
	fmt.Printf("Best: pole (%.4f, %.4f), angle %.4f, cost %.6f (trial %d of %d)\n\n",
		result.Summary.PoleLon, result.Summary.PoleLat, result.Summary.Angle,
		result.Summary.BestCost, result.BestIndex, len(result.Trials))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRIAL\tLON\tLAT\tANGLE\tCOST\tEVALS")
	fmt.Fprintln(w, "-----\t---\t---\t-----\t----\t-----")
	for _, trial := range result.Trials {
		marker := ""
		if trial.Index == result.BestIndex {
			marker = " *"
		}
		fmt.Fprintf(w, "%d%s\t%.4f\t%.4f\t%.4f\t%.6f\t%d\n",
			trial.Index, marker,
			trial.Params[0], trial.Params[1], trial.Params[2],
			trial.Cost, trial.Evals)
	}
	return w.Flush()
}
