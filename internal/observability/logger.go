package observability

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Logger writes one JSON object per line.
type Logger struct {
	base    *log.Logger
	service string
}

func NewLogger(service string) *Logger {
	return NewLoggerTo(os.Stdout, service)
}

func NewLoggerTo(w io.Writer, service string) *Logger {
	return &Logger{base: log.New(w, "", 0), service: service}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.write("info", message, fields)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.write("warn", message, fields)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.write("error", message, fields)
}

func (l *Logger) write(level, message string, fields map[string]any) {
	payload := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"message":   message,
	}
	if l.service != "" {
		payload["service"] = l.service
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		payload[k] = v
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		l.base.Println(`{"level":"error","message":"failed to encode log"}`)
		return
	}

	l.base.Println(string(encoded))
}
