// Package logging wires the process-wide slog handler every component
// receives its *slog.Logger from.
package logging

import (
	"io"
	"log/slog"

	"github.com/lmittmann/tint"
)

// New builds a colorized, millisecond-precision logger writing to output,
// following the teacher's cmd/server/logger.go setup. Errors passed as
// slog.Any values are tinted red via ReplaceAttr.
func New(output io.Writer, level slog.Level) *slog.Logger {
	handler := tint.NewHandler(output, &tint.Options{
		Level:      level,
		AddSource:  false,
		TimeFormat: "2006-01-02 15:04:05.000Z07:00",
		NoColor:    false,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindAny {
				if _, ok := a.Value.Any().(error); ok {
					return tint.Attr(9, a)
				}
			}
			return a
		},
	})
	return slog.New(handler)
}
