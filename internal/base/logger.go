package base

import (
	"fmt"
	"log"
	"os"
)

// Logger receives human-readable engine diagnostics. Fatalf must not return.
// The engine writes no LOG file of its own: DefaultLogger sends output
// through the Go stdlib log package.
type Logger interface {
	Infof(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

type defaultLogger struct{}

// DefaultLogger logs to the Go stdlib log package, matching the classic
// package's fallback behavior when no Options.Logger is configured.
var DefaultLogger Logger = defaultLogger{}

func (defaultLogger) Infof(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
}

func (defaultLogger) Fatalf(format string, args ...interface{}) {
	_ = log.Output(2, fmt.Sprintf(format, args...))
	os.Exit(1)
}
