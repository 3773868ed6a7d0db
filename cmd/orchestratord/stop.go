package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running orchestrator daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pidPath := filepath.Join(cfg.StateDir, "orchestrator.pid")
			b, err := os.ReadFile(pidPath)
			if err != nil {
				return fmt.Errorf("reading pid file %s: %w", pidPath, err)
			}
			pid, err := strconv.Atoi(string(b))
			if err != nil {
				return fmt.Errorf("malformed pid file %s: %w", pidPath, err)
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("finding process %d: %w", pid, err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signaling process %d: %w", pid, err)
			}

			for i := 0; i < 50; i++ {
				if !processAlive(pid) {
					_ = os.Remove(pidPath)
					fmt.Println("orchestrator stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("process %d did not exit within 5s", pid)
		},
	}
}
