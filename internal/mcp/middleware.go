package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudportal/projectd/internal/domain/project"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type contextKey int

const userKey contextKey = iota

// getUser extracts the acting user from context.
func getUser(ctx context.Context) *project.User {
	u, _ := ctx.Value(userKey).(*project.User)
	return u
}

// UserResolver resolves the acting user from a bearer token.
type UserResolver interface {
	ResolveToken(ctx context.Context, token string) (*project.User, error)
}

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(resolver UserResolver) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, fmt.Errorf("unauthorized: missing headers")
			}

			token := strings.TrimSpace(strings.TrimPrefix(extra.Header.Get("Authorization"), "Bearer "))
			if token == "" {
				return nil, fmt.Errorf("unauthorized: missing bearer token")
			}

			user, err := resolver.ResolveToken(ctx, token)
			if err != nil {
				return nil, fmt.Errorf("unauthorized: %w", err)
			}
			if user == nil {
				return nil, fmt.Errorf("unauthorized: invalid bearer token")
			}

			ctx = context.WithValue(ctx, userKey, user)
			return next(ctx, method, req)
		}
	}
}

// staticUserMiddleware acts as a fixed user when auth is disabled.
func staticUserMiddleware(user *project.User) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			ctx = context.WithValue(ctx, userKey, user)
			return next(ctx, method, req)
		}
	}
}
