package gateway

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingRunner wraps a Runner and appends every invocation, with its captured
// output and exit status, to a log file.
type LoggingRunner struct {
	Inner   Runner
	logFile *os.File
	mu      sync.Mutex
	writer  *bufio.Writer
}

// NewLoggingRunner creates a new LoggingRunner.
// It opens the specified log file for appending.
func NewLoggingRunner(inner Runner, logFilePath string) (*LoggingRunner, error) {
	if inner == nil {
		return nil, fmt.Errorf("logging runner needs an inner runner")
	}
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open tool log file %s: %w", logFilePath, err)
	}
	return &LoggingRunner{
		Inner:   inner,
		logFile: f,
		writer:  bufio.NewWriter(f),
	}, nil
}

// Run executes the tool through the inner runner and records the call.
// The inner call runs unlocked so concurrent jobs are not serialised by logging.
func (l *LoggingRunner) Run(ctx context.Context, tool Tool, args []string) (Result, error) {
	startTime := time.Now()
	res, err := l.Inner.Run(ctx, tool, args)
	duration := time.Since(startTime)

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s (%s, Duration: %v) ---\n", tool, startTime.Format(time.RFC3339), duration)
	fmt.Fprintf(&b, "Args: %s\n", strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(&b, "Error: %v\n", err)
	} else {
		fmt.Fprintf(&b, "Exit status: %d\n", res.ExitStatus)
	}
	if res.Stdout != "" {
		fmt.Fprintf(&b, "--- stdout ---\n%s\n", strings.TrimRight(res.Stdout, "\n"))
	}
	if res.Stderr != "" {
		fmt.Fprintf(&b, "--- stderr ---\n%s\n", strings.TrimRight(res.Stderr, "\n"))
	}

	l.mu.Lock()
	l.writeLog(b.String())
	if flushErr := l.writer.Flush(); flushErr != nil {
		log.WithError(flushErr).Error("Failed to flush tool log")
	}
	l.mu.Unlock()

	return res, err
}

// writeLog writes a string to the buffered writer. Callers hold l.mu.
func (l *LoggingRunner) writeLog(logString string) {
	_, err := l.writer.WriteString(logString + "\n")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to tool log file: %v\nLog message: %s\n", err, logString)
	}
}

// Close flushes and closes the underlying log file.
func (l *LoggingRunner) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	errFlush := l.writer.Flush()
	errClose := l.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush tool log buffer: %w", errFlush)
	}
	return errClose
}
