// Command planloop is a thin demo binary wiring the orchestration core
// together: load env, pick an oracle backend, install tracing, run one
// request to completion, print the event stream as it happens. Wiring
// order is grounded on the teacher's cmd/agsh/main.go (env load, bus
// first, roles built on top, signal-driven cancellation).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"planloop/internal/approval"
	"planloop/internal/eventbus"
	"planloop/internal/oracle"
	"planloop/internal/orchestrator"
	"planloop/internal/planner"
	"planloop/internal/schema"
	"planloop/internal/snapshotstore"
	"planloop/internal/taskrunner"
	"planloop/internal/telemetry"
)

func main() {
	_ = godotenv.Load(".env")

	o, err := selectOracle()
	if err != nil {
		fmt.Fprintf(os.Stderr, "planloop: %v\n", err)
		os.Exit(1)
	}

	tel, err := telemetry.Setup(context.Background(), "planloop", "0.1.0", os.Getenv("PLANLOOP_PRETTY_TRACES") == "1")
	if err != nil {
		log.Printf("planloop: telemetry setup failed, continuing without tracing: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tel.Shutdown(shutdownCtx)
		}()
	}

	bus := eventbus.New()
	tap := bus.Tap(64)
	go printEvents(tap)

	var store snapshotstore.Store = snapshotstore.NewMemStore()
	if redisURL := os.Getenv("PLANLOOP_REDIS_URL"); redisURL != "" {
		rs, err := snapshotstore.NewRedisStore(context.Background(), redisURL)
		if err != nil {
			log.Printf("planloop: redis snapshot store unavailable, falling back to in-memory: %v", err)
		} else {
			store = rs
			defer rs.Close()
		}
	}

	sessionID := uuid.New().String()

	var gate approval.Gate
	if os.Getenv("PLANLOOP_AUTO_APPROVE") != "1" {
		gate = approval.CallbackGate{
			OnApproveTask: confirmTaskOnStdin,
		}
	}

	orc := orchestrator.New(sessionID, planner.New(o), taskrunner.New(o), bus, gate)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	request := strings.Join(os.Args[1:], " ")
	if request == "" {
		fmt.Fprintln(os.Stderr, "usage: planloop <request>")
		os.Exit(2)
	}

	summary, err := orc.Execute(ctx, request)
	cancel()

	if saveErr := store.Save(context.Background(), orc.Snapshot()); saveErr != nil {
		log.Printf("planloop: snapshot save failed: %v", saveErr)
	}

	// Give the event printer a moment to drain the final events before the
	// bus is closed and the process exits.
	time.Sleep(50 * time.Millisecond)
	bus.Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "planloop: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\ndone: %d/%d tasks completed in %s (success=%v)\n",
		summary.CompletedTasks, summary.TotalTasks, summary.Duration.Round(time.Millisecond), summary.Success)
}

// selectOracle picks an Oracle backend: PLANLOOP_ORACLE=anthropic uses the
// Anthropic Messages API; anything else (default) targets an
// OpenAI-chat-completions-compatible endpoint via the tiered TOOL_* /
// OPENAI_* environment variables, mirroring the teacher's llm.NewTier
// selection.
func selectOracle() (oracle.Oracle, error) {
	switch strings.ToLower(os.Getenv("PLANLOOP_ORACLE")) {
	case "anthropic":
		return oracle.NewAnthropicClientFromEnv()
	default:
		return oracle.NewHTTPClientFromTier("TOOL")
	}
}

// confirmTaskOnStdin is the default interactive Approval Gate task
// callback: print the task and block on a y/n answer, mirroring the
// teacher's clarifyFn pattern in cmd/agsh/main.go's runTask.
func confirmTaskOnStdin(ctx context.Context, task schema.Task, risk schema.RiskLevel, taskContext string) (schema.ApprovalVerdict, error) {
	fmt.Printf("? approve task %q (risk=%s) [y/N]: ", task.Title, risk)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return schema.ApprovalReject, fmt.Errorf("no input")
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if answer == "y" || answer == "yes" {
		return schema.ApprovalApprove, nil
	}
	return schema.ApprovalReject, nil
}

func printEvents(tap <-chan eventbus.Event) {
	for ev := range tap {
		switch ev.Kind {
		case eventbus.PlanningStarted:
			fmt.Println("→ planning…")
		case eventbus.PlanCreated:
			n := 0
			if ev.Plan != nil {
				n = len(ev.Plan.Tasks)
			}
			fmt.Printf("→ plan ready: %d task(s)\n", n)
		case eventbus.TaskStarted:
			if ev.Task != nil {
				fmt.Printf("  [%d] %s: %s\n", ev.StepIndex, ev.Task.ID, ev.Task.Title)
			}
		case eventbus.DebugStarted:
			if ev.Task != nil {
				fmt.Printf("      debug attempt %d for %s\n", ev.Attempt, ev.Task.ID)
			}
		case eventbus.TaskCompleted:
			if ev.Task != nil {
				fmt.Printf("      ✓ %s: %s\n", ev.Task.ID, firstN(ev.Result, 200))
			}
		case eventbus.TaskFailed:
			if ev.Task != nil {
				fmt.Printf("      ✗ %s: %s\n", ev.Task.ID, ev.Reason)
			}
		case eventbus.ExecutionFailed:
			fmt.Printf("execution failed: %s\n", ev.Reason)
		case eventbus.ExecutionCompleted:
			if ev.Summary != nil {
				b, _ := json.Marshal(ev.Summary)
				fmt.Printf("execution completed: %s\n", b)
			}
		}
	}
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
