package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"planora/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	clientKeyUnknown      = "unknown"

	permWriteServices = "write:services"
	permReadExports   = "read:exports"
	permAdmin         = "admin"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
)

// apiKeyAuth checks the API key and extra secret pair shared by the HTTP
// and gRPC servers.
type apiKeyAuth struct {
	enabled      bool
	apiKeyHeader string
	extraHeader  string
	clients      map[string]config.APIClientKey
}

func newAPIKeyAuth(cfg config.APIAuthConfig) *apiKeyAuth {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}

	apiKeyHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderAPIKey))
	if apiKeyHeader == "" {
		apiKeyHeader = apiKeyHeaderDefault
	}
	extraHeader := strings.ToLower(strings.TrimSpace(cfg.HeaderExtra))
	if extraHeader == "" {
		extraHeader = apiExtraHeaderDefault
	}

	return &apiKeyAuth{
		enabled:      cfg.Enabled,
		apiKeyHeader: apiKeyHeader,
		extraHeader:  extraHeader,
		clients:      m,
	}
}

func (a *apiKeyAuth) authenticate(apiKey, extra, required string) (config.APIClientKey, error) {
	apiKey = strings.TrimSpace(apiKey)
	extra = strings.TrimSpace(extra)
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	if !hasPermission(client, required) {
		return config.APIClientKey{}, errPermissionDenied
	}
	return client, nil
}

// An empty permission list allows everything.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func requiredPermissionHTTP(r *http.Request) string {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/admin/"):
		return permAdmin
	case strings.HasSuffix(path, "/orders/export"):
		return permReadExports
	case strings.HasPrefix(path, "/api/services") && r.Method != http.MethodGet:
		return permWriteServices
	}
	return ""
}

// Middleware guards every route except the liveness check.
func (a *apiKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enabled || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		_, err := a.authenticate(r.Header.Get(a.apiKeyHeader), r.Header.Get(a.extraHeader), requiredPermissionHTTP(r))
		if err != nil {
			code := http.StatusUnauthorized
			if errors.Is(err, errPermissionDenied) {
				code = http.StatusForbidden
			}
			writeError(w, code, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *apiKeyAuth) httpClientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.apiKeyHeader)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func rateLimitMiddleware(auth *apiKeyAuth, limiter *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(auth.httpClientKey(r)) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthInterceptor applies the same API key check and rate limit to gRPC calls.
type AuthInterceptor struct {
	auth    *apiKeyAuth
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{
		auth:    newAPIKeyAuth(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.check(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := a.check(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (a *AuthInterceptor) check(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	if a.auth.enabled {
		if _, err := a.auth.authenticate(first(md.Get(a.auth.apiKeyHeader)), first(md.Get(a.auth.extraHeader)), ""); err != nil {
			return status.Error(codes.Unauthenticated, err.Error())
		}
	}
	if !a.limiter.allow(grpcClientKey(ctx, md, a.auth.apiKeyHeader)) {
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return nil
}

func grpcClientKey(ctx context.Context, md metadata.MD, header string) string {
	if apiKey := first(md.Get(header)); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
