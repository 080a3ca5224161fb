package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"family-planner/internal/syncqueue"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync queue state stored in DATA_DIR",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		printStatus(cmd, a.queue.Status())
		for _, item := range a.queue.Items() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s  %-6s  tries=%d  queued=%s\n",
				item.ID, item.Operation, item.RetryCount, item.EnqueuedAt.Format(time.DateTime))
		}
		return nil
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Probe the remote and push pending changes once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		before := a.queue.Status()
		if !a.probe(cmd.Context()) {
			fmt.Fprintln(cmd.OutOrStdout(), "Remote unreachable, nothing sent.")
		} else {
			a.queue.Drain(cmd.Context())
			after := a.queue.Status()
			failed := after.DeadLetterCount - before.DeadLetterCount
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %d change(s), %d failed for good.\n", before.QueueLength-after.QueueLength-failed, failed)
		}
		st := a.queue.Status()
		printStatus(cmd, st)
		return nil
	},
}

var deadLettersCmd = &cobra.Command{
	Use:     "deadletters",
	Aliases: []string{"dlq"},
	Short:   "List failed changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		dead := a.queue.DeadLetters()
		if len(dead) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No failed changes.")
			return nil
		}
		for _, item := range dead {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-6s  failed=%s  %s\n",
				item.ID, item.Operation, item.FailedAt.Format(time.DateTime), item.LastError)
		}
		return nil
	},
}

var retryDeadLetterCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Move a failed change back onto the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.queue.RetryDeadLetter(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s.\n", args[0])
		return nil
	},
}

var purgeDeadLettersCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every failed change",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d failed change(s).\n", a.queue.PurgeDeadLetters())
		return nil
	},
}

func init() {
	deadLettersCmd.AddCommand(retryDeadLetterCmd, purgeDeadLettersCmd)
}

func printStatus(cmd *cobra.Command, st syncqueue.Status) {
	state := "offline"
	if st.Online {
		state = "online"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sync: %s, %d pending, %d failed\n", state, st.QueueLength, st.DeadLetterCount)
	if !st.LastSuccessTime.IsZero() {
		fmt.Fprintf(out, "Last synced: %s\n", st.LastSuccessTime.Format(time.DateTime))
	}
	if st.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", st.LastError)
	}
}
