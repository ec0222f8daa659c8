package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wechatgram/internal/config"
)

var stopWait time.Duration

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
	stopCmd.Flags().DurationVar(&stopWait, "wait", 10*time.Second, "how long to wait for the daemon to exit (0 to not wait)")
}

func pidFile(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "wechatgram.pid")
}

func writePIDFile(cfg *config.Config) (string, error) {
	pidPath := pidFile(cfg)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// readPID reads the PID from the wechatgram.pid file and validates the
// process exists by sending signal 0.
func readPID(cfg *config.Config) (*os.Process, error) {
	data, err := os.ReadFile(pidFile(cfg))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no running daemon (PID file not found)")
		}
		return nil, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PID file content: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("no running daemon (process %d not found)", pid)
	}
	return proc, nil
}

// signalDaemon sends sig to the running daemon.
func signalDaemon(sig syscall.Signal) (*os.Process, error) {
	proc, err := readPID(loadConfig())
	if err != nil {
		return nil, err
	}
	if err := proc.Signal(sig); err != nil {
		return nil, fmt.Errorf("send %v: %w", sig, err)
	}
	return proc, nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon, flushing its state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := signalDaemon(syscall.SIGTERM)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGTERM to daemon (PID %d).\n", proc.Pid)
		if stopWait <= 0 {
			return nil
		}

		deadline := time.Now().Add(stopWait)
		for time.Now().Before(deadline) {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				fmt.Fprintln(os.Stdout, "Daemon stopped.")
				return nil
			}
			time.Sleep(100 * time.Millisecond)
		}
		return fmt.Errorf("daemon (PID %d) still running after %s", proc.Pid, stopWait)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := signalDaemon(syscall.SIGHUP)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Sent SIGHUP to daemon (PID %d) for restart.\n", proc.Pid)
		return nil
	},
}
