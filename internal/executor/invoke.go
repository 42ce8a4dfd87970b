package executor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// lineParser turns one raw output line into zero or more events.
type lineParser func(line string) []Event

// runCLI starts the provider command, streams stdout and stderr through the
// parser, mirrors every line into the log file, and returns the collected
// events with the process exit code. A non-zero exit is reported in the
// Result, not as an error; errors are reserved for failures to launch.
func runCLI(ctx context.Context, name string, args []string, req Request, parse lineParser) (*Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}

	var logFile *os.File
	if req.LogPath != "" {
		f, err := os.OpenFile(req.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logFile = f
		defer logFile.Close()
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", name, err)
	}

	var (
		mu     sync.Mutex
		events []Event
		wg     sync.WaitGroup
	)
	readLines := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		// Stream-json lines can be long; grow the scanner buffer.
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			parsed := parse(line)
			mu.Lock()
			events = append(events, parsed...)
			if logFile != nil {
				logFile.WriteString(line + "\n")
			}
			mu.Unlock()
		}
	}

	wg.Add(2)
	go readLines(stdout)
	go readLines(stderr)
	wg.Wait()

	exitCode := 0
	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}

	return &Result{
		Events:   events,
		ExitCode: exitCode,
		Duration: time.Since(start),
	}, nil
}
