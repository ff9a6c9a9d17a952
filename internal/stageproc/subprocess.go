package stageproc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ExitError reports a stage subprocess that finished with a non-zero code.
// It is fatal to the run that invoked it.
type ExitError struct {
	Stage string
	Code  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s stage exited with code %d", e.Stage, e.Code)
}

// Subprocess runs a stage as an external command, invoked as
// `command [args...] <table> <input> <output>`. Stdout and stderr are
// streamed line by line into the run log while the process is running.
type Subprocess struct {
	Stage   string
	Command string
	Args    []string
}

// NewSubprocess builds a subprocess stage processor.
func NewSubprocess(stage, command string, args ...string) *Subprocess {
	return &Subprocess{Stage: stage, Command: command, Args: args}
}

// Run executes the stage command and returns the output file path. The
// output path is derived from the input path (`name.<stage>.csv`).
func (p *Subprocess) Run(ctx context.Context, in Input, logf func(string)) (string, error) {
	out := p.outputPath(in.Path)

	args := append(append([]string{}, p.Args...), in.Table, in.Path, out)
	cmd := exec.CommandContext(ctx, p.Command, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start %s stage: %w", p.Stage, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go p.stream(stdout, "", logf, &wg)
	go p.stream(stderr, "stderr: ", logf, &wg)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code := exitErr.ExitCode()
			logf(fmt.Sprintf("[%s] exit code %d", p.Stage, code))
			return "", &ExitError{Stage: p.Stage, Code: code}
		}
		return "", fmt.Errorf("failed to run %s stage: %w", p.Stage, err)
	}

	logf(fmt.Sprintf("[%s] exit code 0", p.Stage))
	return out, nil
}

func (p *Subprocess) stream(r io.Reader, prefix string, logf func(string), wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logf(fmt.Sprintf("[%s] %s%s", p.Stage, prefix, scanner.Text()))
	}
}

func (p *Subprocess) outputPath(input string) string {
	dir := filepath.Dir(input)
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s.%s.csv", name, p.Stage))
}
