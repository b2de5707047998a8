package auth

import (
	"net/http"
	"strings"

	"vidtube-serverless/internal/httpx"
	"vidtube-serverless/internal/user"
)

// Middleware authenticates the access token from the accessToken cookie or the
// Authorization bearer header and attaches the caller's projection to the request.
func Middleware(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessTokenFrom(r)
			if token == "" {
				httpx.WriteError(w, r, httpx.Unauthorized("Unauthorized request"))
				return
			}

			profile, err := service.Authenticate(r.Context(), token)
			if err != nil {
				httpx.WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(user.WithProfile(r.Context(), profile)))
		})
	}
}

func accessTokenFrom(r *http.Request) string {
	if cookie, err := r.Cookie(accessCookieName); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
