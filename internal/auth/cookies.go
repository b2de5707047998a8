package auth

import "net/http"

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

func setSessionCookies(w http.ResponseWriter, pair TokenPair) {
	http.SetCookie(w, sessionCookie(accessCookieName, pair.AccessToken, 0))
	http.SetCookie(w, sessionCookie(refreshCookieName, pair.RefreshToken, 0))
}

func clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, sessionCookie(accessCookieName, "", -1))
	http.SetCookie(w, sessionCookie(refreshCookieName, "", -1))
}

// sessionCookies are always HttpOnly and Secure, including when cleared.
func sessionCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
