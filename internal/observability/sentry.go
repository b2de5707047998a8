package observability

import (
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// sensitiveHeaders carry session credentials and never leave the process.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return scrubEvent(event)
		},
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// scrubEvent strips cookies and bearer tokens from the captured request.
func scrubEvent(event *sentry.Event) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}

	event.Request.Cookies = ""
	for name := range event.Request.Headers {
		for _, sensitive := range sensitiveHeaders {
			if strings.EqualFold(name, sensitive) {
				delete(event.Request.Headers, name)
			}
		}
	}
	return event
}
