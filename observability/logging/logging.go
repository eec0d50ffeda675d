package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler as the process-wide default and returns
// it for direct use. Every line carries the service name, plus the deployment
// environment when one is provided, so gateway and engine logs from several
// stakenet deployments can be filtered apart in one aggregation pipeline.
func Setup(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	base := slog.New(handler).With(args...)
	slog.SetDefault(base)

	// Route the plain log package through the same handler; goleveldb and
	// other dependencies still write to it.
	bridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
