package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sethgrantham/baton/internal/config"
	"github.com/sethgrantham/baton/internal/events"
	"github.com/sethgrantham/baton/internal/executor"
	"github.com/sethgrantham/baton/internal/fallback"
	"github.com/sethgrantham/baton/internal/playbook"
	"github.com/sethgrantham/baton/internal/policy"
	"github.com/sethgrantham/baton/internal/runner"
	"github.com/sethgrantham/baton/internal/signals"
	"github.com/sethgrantham/baton/internal/skills"
	"github.com/sethgrantham/baton/internal/state"
	"github.com/sethgrantham/baton/pkg/models"
)

var (
	runPlaybookPath string
	runHeadless     bool
	runSessionID    string
	runMaxFailures  int
	runNoFallback   bool
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Run a request through the playbook",
	Long: `Run a request as a composite task.

The playbook decomposes the request into subtasks. Baton schedules
them in dependency order, executing each subtask's skill steps and
feeding outputs downstream through the session blackboard.

Use --session to continue an earlier session: its blackboard is
restored before the run and persisted again afterwards, so later
runs can consume variables and artifacts produced by earlier ones.

Failure handling:
  - A failed plan is replanned onto the subtask's fallback steps once.
  - Subtasks blocked by a failed dependency are skipped.
  - --max-failures stops the run early after that many failures.
  - When the run cannot complete, a fallback response is requested
    from the configured model (disable with --no-fallback).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runPlaybookPath, "playbook", "baton.yaml", "Playbook file to execute")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (print events to stdout)")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "Continue an existing session by ID")
	runCmd.Flags().IntVar(&runMaxFailures, "max-failures", 0, "Stop after this many subtask failures (0 = no limit)")
	runCmd.Flags().BoolVar(&runNoFallback, "no-fallback", false, "Disable the fallback responder")
}

func runTask(cmd *cobra.Command, args []string) (retErr error) {
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runTask: %v", r)
		}
	}()

	request := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	pb, err := playbook.Load(runPlaybookPath)
	if err != nil {
		return fmt.Errorf("load playbook: %w", err)
	}

	// Open the state database.
	dbPath := cfg.State.DBPath
	if dbPath == "" {
		dbPath = state.ProjectDBPath(projectRoot)
	}
	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if cfg.State.RetainRuns > 0 {
		if _, err := db.PurgeOldRuns(cfg.State.RetainRuns); err != nil {
			fmt.Printf("Warning: purging old runs: %v\n", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	// Stop-signal watcher: "baton stop" from another terminal halts the
	// loop between subtasks.
	watcher, err := signals.New(projectRoot)
	if err != nil {
		fmt.Printf("Warning: stop-signal watcher unavailable: %v\n", err)
		watcher = nil
	} else {
		defer watcher.Close()
		watcher.Clear()
	}

	bus := events.NewBus()

	registry := skills.DefaultRegistry()
	guard := skills.NewGuard(pb.Guards)
	dagRunner := runner.New(registry, guard, bus)

	deps := executor.Deps{
		Decomposer:    &playbook.Decomposer{Playbook: pb},
		Orchestration: executor.StandardOrchestration{},
		Planner:       &playbook.Planner{Playbook: pb},
		Validator:     playbook.Validator{},
		Replanner:     &playbook.Replanner{Playbook: pb},
		Runner:        dagRunner,
		Memory:        db,
		Cache:         planCache{db: db},
		Bus:           bus,
	}

	if runMaxFailures > 0 {
		deps.Policy = policy.StopAfter{N: runMaxFailures}
	} else if cfg.Executor.MaxFailures > 0 {
		deps.Policy = policy.StopAfter{N: cfg.Executor.MaxFailures}
	}

	if cfg.Executor.FallbackEnabled && !runNoFallback {
		deps.Fallback = buildFallback(cfg)
	}

	if cfg.Executor.DebugLog {
		logger := executor.NewDebugLoggerForProject(projectRoot)
		defer logger.Close()
		deps.Logger = logger
	}

	if watcher != nil {
		deps.StopRequested = watcher.ShouldStop
	}

	exec, err := executor.New(deps)
	if err != nil {
		return fmt.Errorf("create executor: %w", err)
	}

	priorIntent := sessionIntent(runSessionID)

	var result *models.RunResult
	if runHeadless || !cfg.TUI.Enabled || stdoutIsPiped() {
		result = runHeadlessMode(ctx, exec, bus, request, priorIntent)
	} else {
		result, err = runWithTUI(ctx, exec, bus, cfg, request, priorIntent)
		if err != nil {
			return err
		}
	}

	printResult(result)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// stdoutIsPiped reports whether stdout is not a terminal. Piped output
// always runs headless.
func stdoutIsPiped() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return true
	}
	return fi.Mode()&os.ModeCharDevice == 0
}

// sessionIntent builds a prior intent carrying the session to resume,
// or nil for a fresh session.
func sessionIntent(sessionID string) *models.Intent {
	if sessionID == "" {
		return nil
	}
	return &models.Intent{
		ID:       uuid.NewString(),
		Metadata: map[string]any{"session_id": sessionID},
	}
}

// runHeadlessMode executes the request printing events to stdout.
func runHeadlessMode(ctx context.Context, exec *executor.Executor, bus *events.Bus, request string, prior *models.Intent) *models.RunResult {
	bus.SubscribeAll(printEvent)

	fmt.Printf("Running: %s\n\n", request)
	return exec.Execute(ctx, request, prior, nil)
}

// printEvent writes one event line to stdout.
func printEvent(e events.Event) {
	ts := e.Timestamp.Format("15:04:05")
	switch e.Type {
	case events.SubtaskStart:
		id, _ := e.Payload["subtask_id"].(string)
		fmt.Printf("%s %s subtask %s started\n", ts, color.CyanString("→"), id)
	case events.SubtaskComplete:
		id, _ := e.Payload["subtask_id"].(string)
		fmt.Printf("%s %s subtask %s completed\n", ts, color.GreenString("✓"), id)
	case events.SubtaskFailed:
		id, _ := e.Payload["subtask_id"].(string)
		msg, _ := e.Payload["error"].(string)
		fmt.Printf("%s %s subtask %s failed: %s\n", ts, color.RedString("✗"), id, msg)
	case events.PlanReplanning:
		id, _ := e.Payload["subtask_id"].(string)
		reason, _ := e.Payload["reason"].(string)
		fmt.Printf("%s %s replanning subtask %s (%s)\n", ts, color.YellowString("↻"), id, reason)
	case events.StepFailed:
		fmt.Printf("%s %s step %s failed\n", ts, color.RedString("✗"), e.StepID)
	case events.SystemError:
		msg, _ := e.Payload["error"].(string)
		fmt.Printf("%s %s %s\n", ts, color.RedString("ERROR"), msg)
	}
}

// planCache snapshots completed plans into working state so past runs
// can be inspected and replayed.
type planCache struct {
	db *state.DB
}

func (c planCache) Store(plan *models.Plan) error {
	steps := make([]map[string]any, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		steps = append(steps, map[string]any{
			"id":     s.ID,
			"skill":  s.SkillName,
			"status": string(s.Status),
		})
	}
	return c.db.SetWorkingState("plan:"+plan.ID+":snapshot", map[string]any{
		"id":         plan.ID,
		"goal":       plan.Goal,
		"status":     string(plan.Status),
		"created_at": plan.CreatedAt.Format(time.RFC3339),
		"steps":      steps,
		"metadata":   plan.Metadata,
	})
}

// buildFallback selects the fallback responder. Without an API key the
// responder degrades to a static offline message.
func buildFallback(cfg *config.Config) executor.Fallback {
	apiKey, keyErr := config.GetAPIKey(cfg)
	if keyErr == nil {
		if err := config.ValidateAPIKey(apiKey); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
	}
	responder, err := fallback.New(fallback.Config{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		fmt.Printf("Warning: fallback responder unavailable: %v\n", err)
		return fallback.Static{
			Message: "The task could not be completed. Review the failure report and retry with a simpler request.",
		}
	}
	return responder
}

// printResult writes the run outcome to stdout.
func printResult(result *models.RunResult) {
	fmt.Println()
	if result.Success {
		fmt.Printf("%s Task completed (%d iterations)\n", color.GreenString("✓"), result.Iterations)
	} else {
		fmt.Printf("%s Task did not complete\n", color.RedString("✗"))
		if result.Error != "" {
			fmt.Println()
			fmt.Println(result.Error)
		}
	}
	if sid, ok := result.Context["session_id"].(string); ok && sid != "" {
		fmt.Printf("\nSession: %s (resume with --session %s)\n", sid, sid)
	}
}
