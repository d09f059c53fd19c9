package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

var errUnauthorized = errors.New("Unauthorized")

func verifyAccessToken(expected, authorization string) error {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return errUnauthorized
	}
	return nil
}

// accessTokenInterceptor checks the bearer token of incoming requests, on a
// client it attaches the token instead.
type accessTokenInterceptor struct {
	token string
}

// NewAccessTokenInterceptor works for both handlers and clients.
func NewAccessTokenInterceptor(token string) connect.Interceptor {
	return accessTokenInterceptor{token: token}
}

func (a accessTokenInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			req.Header().Set("Authorization", "Bearer "+a.token)
			return next(ctx, req)
		}
		err := verifyAccessToken(a.token, req.Header().Get("Authorization"))
		if err != nil {
			return nil, connect.NewError(connect.CodeUnauthenticated, err)
		}
		return next(ctx, req)
	}
}

func (a accessTokenInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set("Authorization", "Bearer "+a.token)
		return conn
	}
}

func (a accessTokenInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, shc connect.StreamingHandlerConn) error {
		err := verifyAccessToken(a.token, shc.RequestHeader().Get("Authorization"))
		if err != nil {
			return connect.NewError(connect.CodeUnauthenticated, err)
		}
		return next(ctx, shc)
	}
}

// requireAccessToken is the REST counterpart of the interceptor.
func (s Service) requireAccessToken(next http.HandlerFunc) http.HandlerFunc {
	if s.accessToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		err := verifyAccessToken(s.accessToken, r.Header.Get("Authorization"))
		if err != nil {
			s.writeJSON(w, http.StatusUnauthorized, restErrorBody{Detail: err.Error()})
			return
		}
		next(w, r)
	}
}
