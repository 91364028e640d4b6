package server

import (
	"net/http"
	"time"

	"walter-bridge/internal/inbound"
)

// CookieMaxAge keeps a browser visitor on the same thread for a month.
const CookieMaxAge = 30 * 24 * time.Hour

// SetConversationCookie echoes the conversation id back so cookie-only
// widgets keep their thread on the next message.
func SetConversationCookie(w http.ResponseWriter, r *http.Request, conversationID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     inbound.CookieName,
		Value:    conversationID,
		Path:     "/",
		MaxAge:   int(CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

// ClearConversationCookie drops the browser's conversation id.
func ClearConversationCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     inbound.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
