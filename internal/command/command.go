// Package command abstracts external command execution so callers that shell
// out (docker invocations, URL resolution, post-processing tools) stay
// testable without a real binary on PATH.
package command

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Executor runs an external command, forwarding each output line as it
// arrives. Stdout and stderr are forwarded separately; a nil callback sends
// that stream's lines to the process's stderr.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error
}

// New returns the real executor backed by os/exec.
func New() Executor {
	return osExecutor{}
}

// Output runs the command and captures its stdout lines joined by newlines.
// Stderr is not captured; diagnostics pass through to the process's stderr
// so they cannot contaminate the captured value.
func Output(ctx context.Context, exec Executor, binary string, args []string) (string, error) {
	var lines []string
	err := exec.Run(ctx, binary, args, func(line string) {
		lines = append(lines, line)
	}, nil)
	return strings.Join(lines, "\n"), err
}

type osExecutor struct{}

func (osExecutor) Run(ctx context.Context, binary string, args []string, onStdout, onStderr func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once
	scan := func(r io.Reader, onLine func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onLine != nil {
				onLine(scanner.Text())
				continue
			}
			fmt.Fprintln(os.Stderr, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}

	wg.Add(2)
	go scan(stdout, onStdout)
	go scan(stderr, onStderr)
	wg.Wait()

	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
