// Command orchestratord is the control surface for the task orchestrator:
// start|stop|status|monitor, a github.com/spf13/cobra root command modeled
// on recac's and Hortator's cmd/ layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "orchestratord",
		Short: "Multi-agent task orchestrator control surface",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to orchestrator.yaml (optional)")

	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newMonitorCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
