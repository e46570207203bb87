package log

import (
	"io"

	"github.com/rs/zerolog"
)

// ZerologWarnFunc returns a sink for pkg/errors.Warn that writes one
// zerolog record per warning. Warnings implementing
// zerolog.LogObjectMarshaler are expanded into structured fields.
func ZerologWarnFunc(w io.Writer) func(error) {
	logger := zerolog.New(w).With().Timestamp().Str("severity", "WARNING").Logger()
	return func(warning error) {
		event := logger.Warn()
		if m, ok := warning.(zerolog.LogObjectMarshaler); ok {
			event = event.Object("warning", m)
		}
		event.Msg(warning.Error())
	}
}
