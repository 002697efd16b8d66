package common

import (
	"io"
	"log"
	"os"
)

var (
	logger = log.New(os.Stderr, "[bbx] ", log.LstdFlags|log.Lmicroseconds)
)

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

// SetOutput redirects the package logger, used by the daemon to route
// messages into its rotating sink.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}
