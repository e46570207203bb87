package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the JSON handler on stdout as the slog default.
func SetupLogger(loglevel string) error {
	handler, err := NewHandler(os.Stdout, loglevel)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// NewHandler builds the JSON handler used by the pipeline. Attribute names
// are converted to the Cloud Logging format and error attributes are
// expanded with their stacktrace.
func NewHandler(w io.Writer, loglevel string) (slog.Handler, error) {
	level, err := ToLogLevel(loglevel)
	if err != nil {
		return nil, err
	}
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     level,
		// Replace attributes to convert to CloudLogging format.
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{
					Key:   "severity",
					Value: attr.Value,
				}
			case slog.MessageKey:
				attr = slog.Attr{
					Key:   "message",
					Value: attr.Value,
				}
			case slog.SourceKey:
				attr = slog.Attr{
					Key:   "logging.googleapis.com/sourceLocation",
					Value: attr.Value,
				}
			}
			return attr
		},
	}
	return WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops)), nil
}

func ToLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "info", "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", level)
	}
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}
