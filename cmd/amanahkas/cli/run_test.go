package cli

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunJobsRequiresSubcommand(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := RunJobs(context.Background(), "127.0.0.1:6379", nil, io.Discard, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "expected a subcommand")
}

func TestRunJobsUnknownSubcommand(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := RunJobs(context.Background(), "127.0.0.1:6379", []string{"flush"}, io.Discard, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), `unknown subcommand "flush"`)
}

func TestRunJobsTriggerRequiresType(t *testing.T) {
	stderr := new(bytes.Buffer)
	code := RunJobs(context.Background(), "127.0.0.1:6379", []string{"trigger"}, io.Discard, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "task type required")
}

func TestRunJobsTriggerRejectsUnknownType(t *testing.T) {
	// The task-type switch fails before anything touches Redis.
	stderr := new(bytes.Buffer)
	code := RunJobs(context.Background(), "127.0.0.1:6379", []string{"trigger", "ledger:rebuild"}, io.Discard, stderr)
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "unsupported job")
}
