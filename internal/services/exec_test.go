package services

import (
	"context"
	"sync"
	"testing"
)

func TestCommandExecutorStreamsBothPipes(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	collect := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}

	exec := CommandExecutor{}
	err := exec.Run(context.Background(), "sh",
		[]string{"-c", "echo out-line; echo err-line 1>&2"}, collect)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	seen := map[string]bool{}
	for _, line := range lines {
		seen[line] = true
	}
	if !seen["out-line"] || !seen["err-line"] {
		t.Fatalf("captured lines: %v", lines)
	}
}

func TestCommandExecutorReportsExitFailure(t *testing.T) {
	exec := CommandExecutor{}
	err := exec.Run(context.Background(), "sh", []string{"-c", "exit 3"}, func(string) {})
	if err == nil {
		t.Fatal("expected non-zero exit to surface as an error")
	}
}
