package http

import (
	"crypto/subtle"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeUnauthorized = "unauthorized"
)

// VerifyToken checks that the token of a request matches the server secret.
// An empty secret disables authentication.
func VerifyToken(secret string, r *http.Request) error {
	if secret == "" {
		return nil
	}

	token := GetTokenFromHTTPRequest(r)
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return errors.New("invalid auth token").
			WithType(ErrTypeUnauthorized).
			WithTag("remote_addr", r.RemoteAddr)
	}
	return nil
}

// VerifyAuthToken returns a WebSocket handshake that rejects clients without a
// valid token.
func VerifyAuthToken(secret string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := VerifyToken(secret, r); err != nil {
			logs.WithTag("client_id", r.Header.Get(HeaderClientID)).Error(err)
			return err
		}

		return nil
	}
}

func VerifyAuthTokenHandler(secret string, next http.HandlerFunc) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := VerifyToken(secret, r); err != nil {
			logs.WithTag("client_id", r.Header.Get(HeaderClientID)).Error(err)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}
