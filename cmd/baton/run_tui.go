package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/sethgrantham/baton/internal/config"
	"github.com/sethgrantham/baton/internal/events"
	"github.com/sethgrantham/baton/internal/executor"
	"github.com/sethgrantham/baton/internal/tui"
	"github.com/sethgrantham/baton/pkg/models"
)

// runWithTUI executes the request behind the interactive run monitor.
// Events flow bus -> bridge -> channel transport -> TUI program.
func runWithTUI(ctx context.Context, exec *executor.Executor, bus *events.Bus, cfg *config.Config, request string, prior *models.Intent) (result *models.RunResult, retErr error) {
	// Suppress log output while the TUI is active (it corrupts the display)
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("PANIC in runWithTUI: %v", r)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	transport := events.NewChannelTransport(cfg.Events.BufferSize)
	bridge := events.NewBridge(bus, transport, cfg.Events.BufferSize)
	bridge.Start()

	program, _ := tui.NewProgram(request)

	pumpDone := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tui.Pump(program, transport.Records(), pumpDone)
		return nil
	})

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				program.Send(tui.RunDoneMsg{Success: false, Message: fmt.Sprintf("internal error: %v", r)})
			}
			bridge.Stop()
			close(pumpDone)
		}()
		result = exec.Execute(gctx, request, prior, nil)
		msg := tui.RunDoneMsg{Success: result.Success}
		if result.Success {
			msg.Message = fmt.Sprintf("task completed (%d iterations)", result.Iterations)
		} else {
			msg.Message = "task did not complete"
		}
		program.Send(msg)
		return nil
	})

	// The program owns the terminal until the user quits. Quitting
	// mid-run cancels the executor between subtasks.
	if _, err := program.Run(); err != nil {
		cancel()
		return nil, fmt.Errorf("tui: %w", err)
	}
	cancel()

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("run produced no result")
	}
	return result, nil
}
