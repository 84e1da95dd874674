package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sethgrantham/baton/internal/signals"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running baton to stop",
	Long: `Write a stop signal for a baton run in this project.

The running executor checks for the signal between subtasks and
halts before starting the next one. Already-running steps finish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}

		w, err := signals.New(projectRoot)
		if err != nil {
			return fmt.Errorf("open signal directory: %w", err)
		}
		defer w.Close()

		if err := w.SendStop(); err != nil {
			return fmt.Errorf("send stop signal: %w", err)
		}
		fmt.Println("Stop signal sent. The run will halt before its next subtask.")
		return nil
	},
}
