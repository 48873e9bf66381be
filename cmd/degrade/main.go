// Command degrade produces perceptual-hash test variants of a reference
// image: a heavy Gaussian blur, a drastic downscale and a corrupted JPEG.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"phash-degrade/internal/core"
)

const AppName = "degrade"

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

const (
	exitFailed = 1 // one or more variants failed
	exitFatal  = 2 // the run aborted before any variant
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if core.IsFatal(err) {
		return exitFatal
	}
	return exitFailed
}

// initLogger initializes the logger with appropriate level
func initLogger(out io.Writer, debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}
