package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "baton",
	Short: "Playbook-driven composite task executor",
	Long: `Baton executes composite tasks described by a playbook.

A playbook decomposes a request into subtasks with dependencies.
Baton validates the dependency graph, schedules subtasks in
dependency order, runs each subtask's skill steps, replans failures
onto fallback steps, and synchronizes outputs through a shared
session blackboard persisted in a project-local SQLite database.

Core capabilities:
- Dependency-aware sequential subtask scheduling
- Per-subtask validation and one-shot replanning onto fallback steps
- Skill allowlists per subtask type, enforced before any step runs
- Session blackboard shared across runs of the same session
- Optional fallback response when a run cannot complete`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
