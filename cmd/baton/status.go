package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sethgrantham/baton/internal/state"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent task runs",
	Long: `Show recent task runs recorded in the project state database.

Each line shows the outcome, session, iteration count, and request.
Use --limit to change how many runs are listed.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Maximum number of runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	dbPath := state.ProjectDBPath(projectRoot)
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Println("No runs recorded yet. Run 'baton init' and 'baton run' first.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	runs, err := db.ListRecentRuns(statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, r := range runs {
		outcome := color.RedString("failed ")
		if r.Success {
			outcome = color.GreenString("ok     ")
		} else if r.Partial {
			outcome = color.YellowString("partial")
		}
		session := r.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		request := r.Request
		if len(request) > 60 {
			request = request[:57] + "..."
		}
		fmt.Printf("%s  %s  %-8s  iter=%-3d  %s\n",
			r.StartedAt.Format("2006-01-02 15:04"), outcome, session, r.Iterations, request)
	}
	return nil
}
