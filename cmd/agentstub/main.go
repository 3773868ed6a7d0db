// Command agentstub is the minimal reference agent spec.md §6's "Agent
// contract" describes: on startup it writes <name>.pid, then loops
// draining its own notification stream and echoing started/completed
// events back. It exists for tests and local manual runs, not as a real
// worker — task execution (builds, LLM calls, etc.) is out of scope.
//
// Grounded in fluxforge/agent/{config,heartbeat,server}.go's pid-file and
// graceful-shutdown shape, rewired from FluxForge's HTTP registration onto
// the file transport the orchestrator core uses.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/relaysched/orchestrator/internal/transport"
)

func main() {
	var (
		name     = flag.String("name", "", "agent name, must match the name the orchestrator dispatches to")
		stateDir = flag.String("state-dir", "./orchestrator-state", "orchestrator state directory")
		poll     = flag.Duration("poll", time.Second, "how often to check for new dispatched tasks")
		workTime = flag.Duration("work-time", 2*time.Second, "simulated time spent per task before completing it")
	)
	flag.Parse()
	if *name == "" {
		log.Fatal("agentstub: --name is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pidPath := filepath.Join(*stateDir, *name+".pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		log.Fatalf("agentstub: writing pid file: %v", err)
	}
	defer os.Remove(pidPath)

	in, err := transport.NewStreams(filepath.Join(*stateDir, "streams", "out"))
	if err != nil {
		log.Fatalf("agentstub: opening inbound (dispatch) stream dir: %v", err)
	}
	out, err := transport.NewStreams(filepath.Join(*stateDir, "streams", "in"))
	if err != nil {
		log.Fatalf("agentstub: opening outbound (notification) stream dir: %v", err)
	}

	log.Printf("agentstub %q started, pid %d", *name, os.Getpid())

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("agentstub %q shutting down", *name)
			return
		case <-ticker.C:
			drain(ctx, *name, in, out, *workTime)
		}
	}
}

// drain processes every dispatch/notification event the orchestrator
// wrote for this agent since the last poll, echoing started then
// completed for each assigned_task/assigned_batch/start_task event.
func drain(ctx context.Context, name string, in, out *transport.Streams, workTime time.Duration) {
	events, err := in.Drain(name)
	if err != nil {
		log.Printf("agentstub %q: draining dispatch stream: %v", name, err)
		return
	}
	for _, ev := range events {
		switch ev.Kind {
		case transport.EventAssignedTask, transport.EventStartTask, transport.EventRetryTask, transport.EventAssignedBatch:
			runTask(ctx, name, ev.TaskID, out, workTime)
		case transport.EventDependencySatisfied, transport.EventCancel, transport.EventNewTask:
			// informational only; the orchestrator re-dispatches separately
		default:
			log.Printf("agentstub %q: ignoring unknown event kind %q", name, ev.Kind)
		}
	}
}

func runTask(ctx context.Context, name, taskID string, out *transport.Streams, workTime time.Duration) {
	now := time.Now()
	if err := out.Append(name, transport.Event{Timestamp: now, Kind: transport.EventStarted, TaskID: taskID}); err != nil {
		log.Printf("agentstub %q: emitting started for %s: %v", name, taskID, err)
		return
	}

	select {
	case <-time.After(workTime):
	case <-ctx.Done():
		return
	}

	if err := out.Append(name, transport.Event{Timestamp: time.Now(), Kind: transport.EventCompleted, TaskID: taskID}); err != nil {
		log.Printf("agentstub %q: emitting completed for %s: %v", name, taskID, err)
	}
}
