package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaysched/orchestrator/internal/health"
	"github.com/relaysched/orchestrator/internal/store"
	"github.com/relaysched/orchestrator/internal/supervisor"
)

func newStatusCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a machine-readable snapshot of orchestrator state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			s, err := store.NewFileStore(cfg.StateDir)
			if err != nil {
				return fmt.Errorf("opening store: %w", err)
			}
			doc := s.Snapshot()

			sample, sampleErr := health.Sample(cmd.Context(), "/")
			level := health.ThrottleNone
			if sampleErr == nil {
				level = health.Classify(sample, cfg)
			}
			limits := health.DeriveLimits(level, cfg)

			report := supervisor.BuildStatusReport(doc, limits, time.Now())

			enc := json.NewEncoder(os.Stdout)
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}
