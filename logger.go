package redistruct

import (
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler
// and configures the log level based on the REDISTRUCT_LOG_LEVEL environment
// variable. It defaults to Info level if not specified.
//
// Applications that already configure slog themselves can skip this; the
// module logs through slog.Default either way.
func ConfigureLogging() {
	logLevel.Set(slog.LevelInfo)

	lvl := os.Getenv("REDISTRUCT_LOG_LEVEL")
	switch lvl {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}
	if CurrentConfig().Debug {
		logLevel.Set(slog.LevelDebug)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel sets the logging level for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
