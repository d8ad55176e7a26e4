package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options controls Init.
type Options struct {
	// Path of the log file. Empty means stdout only.
	Path  string
	Debug bool
	JSON  bool
}

var (
	mu      sync.Mutex
	logFile *os.File
	logPath string
	base    = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Init sets up the global logger writing to stdout and, when configured, to
// a log file. Must be called after config.Load().
func Init(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stdout
	if !opts.JSON {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{console}
	if opts.Path == "" {
		if logFile != nil {
			logFile.Close()
			logFile = nil
		}
		logPath = ""
	} else {
		if f, err := openLogFile(opts.Path); err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
		} else {
			if logFile != nil {
				logFile.Close()
			}
			logFile = f
			logPath = opts.Path
			writers = append(writers, f)
		}
	}

	base = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	if logPath != "" {
		base.Info().Str("path", logPath).Msg("logging to file")
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	return f, nil
}

// L returns the global logger.
func L() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	l := base
	return &l
}

// WithComponent returns a child logger tagged with the component name.
func WithComponent(component string) zerolog.Logger {
	return L().With().Str("component", component).Logger()
}

// ReadTail returns the last n lines of the log file. Without a log file it
// returns an empty string.
func ReadTail(n int) (string, error) {
	mu.Lock()
	path := logPath
	mu.Unlock()

	if path == "" {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > 2*n && n > 0 {
			lines = append(lines[:0], lines[len(lines)-n:]...)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan log file: %w", err)
	}

	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}
