package api

import (
	"net/http"
	"sync"

	"vidtube-serverless/app"
	"vidtube-serverless/internal/httpx"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
)

// Handler is the serverless entry point. The runtime is built once per instance.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		apiRuntime, initErr = app.Build(app.Options{LoadDotEnv: false})
	})

	if initErr != nil {
		httpx.WriteError(w, r, httpx.Internal("application bootstrap failed", initErr))
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
