package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"crash-insights-go/internal/aggregator"
	"crash-insights-go/internal/dataset"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Roll standardized crashes up by location into GeoJSON layers",
	Long: `Reads a standardized crashes JSON file, counts crashes per location and
writes crashes_rollup.geojson plus one crashes_rollup_<mode>.geojson per
requested travel mode.`,
	RunE: runRollup,
}

var (
	rollupIn     string
	rollupOutDir string
	rollupSplit  []string
	rollupCity   string
)

func init() {
	rootCmd.AddCommand(rollupCmd)
	rollupCmd.Flags().StringVarP(&rollupIn, "in", "i", "", "Standardized crashes JSON file")
	rollupCmd.Flags().StringVarP(&rollupOutDir, "out-dir", "o", ".", "Directory for the GeoJSON output")
	rollupCmd.Flags().StringSliceVar(&rollupSplit, "split", dataset.Modes, "Travel modes to split out")
	rollupCmd.Flags().StringVar(&rollupCity, "city", "", "City id stored on the records")
	_ = rollupCmd.MarkFlagRequired("in")
}

func runRollup(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(rollupIn)
	if err != nil {
		return fmt.Errorf("read crashes: %w", err)
	}
	records, err := dataset.ParseStandardCrashes(raw, rollupCity)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return &aggregator.EmptyInputError{What: rollupIn}
	}

	var modes []string
	for _, m := range rollupSplit {
		if m = strings.TrimSpace(m); m != "" {
			modes = append(modes, m)
		}
	}
	paths, err := aggregator.WriteRollups(rollupOutDir, aggregator.RollupByMode(records, modes))
	if err != nil {
		return err
	}
	log.WithField("crashes", len(records)).WithField("files", strings.Join(paths, ",")).Info("rollups written")
	return nil
}
