package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/wechatgram/internal/state"
)

var (
	clearForce    bool
	failuresLimit int
)

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateClearCmd, stateFailuresCmd)
	stateClearCmd.Flags().BoolVar(&clearForce, "force", false, "clear even while the daemon is running")
	stateFailuresCmd.Flags().IntVar(&failuresLimit, "limit", 20, "number of records to show")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted login state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store := state.NewStore(cfg.DataDir)

		snap, err := store.Load()
		if errors.Is(err, state.ErrCorrupt) {
			fmt.Printf("State file %s is unreadable: %v\n", store.Path(), err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if snap == nil {
			fmt.Println("No persisted session.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "File:\t%s\n", store.Path())
		fmt.Fprintf(w, "Valid:\t%t\n", snap.Session.Valid)
		fmt.Fprintf(w, "Uin:\t%s\n", snap.Session.Uin)
		fmt.Fprintf(w, "Cookies:\t%d\n", len(snap.Cookies))
		return w.Flush()
	},
}

var stateClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted session, forcing a new QR login",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		if proc, err := readPID(cfg); err == nil && !clearForce {
			return fmt.Errorf("daemon is running (PID %d) and will rewrite the state on exit; stop it first or pass --force", proc.Pid)
		}
		store := state.NewStore(cfg.DataDir)
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clear state: %w", err)
		}
		fmt.Println("Persisted session cleared.")
		return nil
	},
}

var stateFailuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List recent delivery failures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		recs, err := state.NewJournal(cfg.DataDir).Tail(failuresLimit)
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No delivery failures recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tAT\tROUTE\tKIND\tPEER\tERROR")
		for _, r := range recs {
			fmt.Fprintf(w, "%d\t%s\t%s→%s\t%s\t%s\t%s\n",
				r.Seq,
				r.At.Format("2006-01-02 15:04:05"),
				r.Source, r.Target,
				r.Kind,
				r.Peer,
				r.Error,
			)
		}
		return w.Flush()
	},
}
