package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var foreground bool
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the orchestrator daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pidPath := filepath.Join(cfg.StateDir, "orchestrator.pid")
			if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
				return fmt.Errorf("creating state dir: %w", err)
			}
			if b, err := os.ReadFile(pidPath); err == nil {
				if pid, convErr := strconv.Atoi(string(b)); convErr == nil && processAlive(pid) {
					return fmt.Errorf("orchestrator already running (pid %d)", pid)
				}
			}

			if foreground {
				return runMonitor(cmd.Context(), cfg, httpAddr)
			}

			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolving executable path: %w", err)
			}
			monitorArgs := []string{"monitor"}
			if cfgPath != "" {
				monitorArgs = append(monitorArgs, "--config", cfgPath)
			}
			if httpAddr != "" {
				monitorArgs = append(monitorArgs, "--http", httpAddr)
			}

			logPath := filepath.Join(cfg.StateDir, "orchestrator.log")
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("opening daemon log: %w", err)
			}
			defer logFile.Close()

			proc := exec.Command(exePath, monitorArgs...)
			proc.Stdout = logFile
			proc.Stderr = logFile
			proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := proc.Start(); err != nil {
				return fmt.Errorf("starting daemon: %w", err)
			}
			if err := os.WriteFile(pidPath, []byte(strconv.Itoa(proc.Process.Pid)), 0o644); err != nil {
				return fmt.Errorf("writing pid file: %w", err)
			}
			fmt.Printf("orchestrator started (pid %d), logging to %s\n", proc.Process.Pid, logPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "run in the foreground instead of daemonizing")
	cmd.Flags().StringVar(&httpAddr, "http", "", "also serve /metrics and /status/stream on this address")
	return cmd
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
