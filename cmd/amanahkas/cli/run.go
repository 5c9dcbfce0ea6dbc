package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunJobs dispatches the jobs subcommand used by operators:
//
//	amanahkas jobs trigger <type>   enqueue one job run immediately
//	amanahkas jobs inspect          show queue depths
//	amanahkas jobs scheduled        list upcoming scheduled tasks
//
// The exit code is 0 on success and 1 on any failure.
func RunJobs(ctx context.Context, redisAddr string, args []string, stdout, stderr io.Writer) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "jobs: expected a subcommand (trigger|inspect|scheduled)")
		return 1
	}

	helper, err := NewJobsCLI(redisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = helper.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: task type required")
			return 1
		}
		info, err := helper.Trigger(ctx, args[1])
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s on queue %s (task id %s)\n", args[1], info.Queue, info.ID)
		return 0
	case "inspect":
		stats, err := helper.InspectQueues(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs inspect: %v\n", err)
			return 1
		}
		for _, s := range stats {
			_, _ = fmt.Fprintf(stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n", s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
		}
		return 0
	case "scheduled":
		infos, err := helper.ListScheduled(ctx, 10)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs scheduled: %v\n", err)
			return 1
		}
		if len(infos) == 0 {
			_, _ = fmt.Fprintln(stdout, "no scheduled tasks")
			return 0
		}
		for _, info := range infos {
			_, _ = fmt.Fprintf(stdout, " - %s at %s (task id %s)\n", info.Type, info.NextProcessAt.Format(time.RFC3339), info.ID)
		}
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "jobs: unknown subcommand %q\n", args[0])
		return 1
	}
}
