package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/drebelsky/xdr-ls/lsp"
)

// excludePatterns is a repeatable CLI flag for custom ignore patterns.
type excludePatterns []string

func (e *excludePatterns) String() string { return strings.Join(*e, ", ") }
func (e *excludePatterns) Set(value string) error {
	*e = append(*e, value)
	return nil
}

func main() {
	var maxFileSizeBytes int64
	var logLevel string
	var logFile string
	var excludes excludePatterns

	flag.Var(&excludes, "exclude", "Extra ignore pattern (repeatable)")
	flag.Int64Var(&maxFileSizeBytes, "max-file-size", 1024*1024, "Maximum file size in bytes (default: 1MB)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	flag.StringVar(&logFile, "log-file", "", "Log file path (default: stderr)")
	flag.Parse()

	// Logs go to a file or stderr, never stdout: stdout carries the LSP
	// stdio channel. The workspace root arrives later via initialize.
	logger := setupLogger(logLevel, logFile)

	logger.Info("starting xdr-ls",
		"maxFileSize", maxFileSizeBytes,
		"excludes", excludes.String(),
	)

	server := lsp.NewServer(os.Stdout, logger, lsp.Options{
		ExcludePatterns:  excludes,
		MaxFileSizeBytes: maxFileSizeBytes,
	})

	if err := server.Serve(os.Stdin); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("xdr-ls exiting")
}

// setupLogger creates an slog.Logger writing to stderr or a file.
func setupLogger(level string, logFile string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var writer *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v, falling back to stderr\n", logFile, err)
			writer = os.Stderr
		} else {
			writer = f
		}
	} else {
		writer = os.Stderr
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: logLevel})
	return slog.New(handler)
}
