package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "familyplanner",
	Short: "Family study planner with offline-first task sync",
	Long: `Family study planner. Tasks are saved on this machine first and
family tasks are pushed to the shared database by a retrying sync queue.
Settings come from the environment or CONFIG_FILE.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd, statusCmd, drainCmd, deadLettersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
