package http

import (
	"net/http"
	"strings"
)

const (
	// The header that identifies a client across connections.
	HeaderClientID = "X-Client-Id"

	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderSceneVersion  = "X-Scene-Version"

	// The query parameter browsers use to pass a token to a WebSocket
	// handshake, since they can't set headers.
	tokenQueryParam = "token"

	bearerPrefix = "Bearer "
)

// GetTokenFromHTTPRequest returns the bearer token of a request, read from the
// Authorization header or from the token query parameter.
func GetTokenFromHTTPRequest(r *http.Request) string {
	if auth := r.Header.Get(HeaderAuthorization); auth != "" {
		if len(auth) > len(bearerPrefix) && strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
			return strings.TrimSpace(auth[len(bearerPrefix):])
		}
		return ""
	}
	return r.URL.Query().Get(tokenQueryParam)
}
