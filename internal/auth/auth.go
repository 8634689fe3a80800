package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = errors.New("api key not found")

const keyCacheTTL = 5 * time.Minute

type APIKey struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	KeyHash   string    `json:"key_hash"`
	RateLimit int64     `json:"rate_limit"` // requests per minute, 0 uses the default
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalBinary implements encoding.BinaryMarshaler for Redis
func (a *APIKey) MarshalBinary() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Redis
func (a *APIKey) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, a)
}

type Store interface {
	GetByKey(ctx context.Context, key string) (*APIKey, error)
	Create(ctx context.Context, apiKey *APIKey) error
	Revoke(ctx context.Context, keyID string) error
}

type Method string

const (
	MethodAPIKey    Method = "api_key"
	MethodSession   Method = "session"
	MethodAnonymous Method = "anonymous"
)

// Identity is the caller a request is billed to.
type Identity struct {
	UserID    string
	Anonymous bool
	Method    Method
	APIKeyID  string
	RateLimit int64
}

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	identityKey  contextKey = "identity"
	requestIDKey contextKey = "request_id"
)

type Options struct {
	Store  Store
	Cache  *redis.Client
	Tokens *Tokens
	Logger *slog.Logger
	// AllowAnonymous lets requests without credentials through on the demo
	// allowance. Invalid credentials are always rejected.
	AllowAnonymous bool
}

func NewMiddleware(opts Options) Middleware {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			requestID := uuid.New().String()
			ctx = WithRequestID(ctx, requestID)
			w.Header().Set("X-Request-ID", requestID)

			cred, present, ok := credential(r)
			if !ok {
				writeUnauthorized(w, "invalid Authorization header")
				return
			}
			if !present {
				if !opts.AllowAnonymous {
					writeUnauthorized(w, "missing credentials")
					return
				}
				id := Identity{UserID: "anon:" + clientIP(r), Anonymous: true, Method: MethodAnonymous}
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
				return
			}

			if looksLikeJWT(cred) && opts.Tokens != nil {
				userID, err := opts.Tokens.Validate(cred)
				if err != nil {
					writeUnauthorized(w, err.Error())
					return
				}
				id := Identity{UserID: userID, Method: MethodSession}
				next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
				return
			}

			apiKey, err := lookupKey(ctx, opts, logger, cred)
			if err != nil {
				if errors.Is(err, ErrKeyNotFound) {
					writeUnauthorized(w, "invalid API key")
					return
				}
				logger.Error("api key lookup failed", "request_id", requestID, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			id := Identity{UserID: apiKey.UserID, Method: MethodAPIKey, APIKeyID: apiKey.ID, RateLimit: apiKey.RateLimit}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

// lookupKey resolves an API key through the Redis cache, falling back to
// the store and caching the result.
func lookupKey(ctx context.Context, opts Options, logger *slog.Logger, key string) (*APIKey, error) {
	redisKey := "auth:" + HashKey(key)

	if opts.Cache != nil {
		var cached APIKey
		err := opts.Cache.Get(ctx, redisKey).Scan(&cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, redis.Nil) {
			logger.Warn("redis error", "error", err)
		}
	}

	if opts.Store == nil {
		return nil, ErrKeyNotFound
	}
	apiKey, err := opts.Store.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if opts.Cache != nil {
		_ = opts.Cache.Set(ctx, redisKey, apiKey, keyCacheTTL).Err()
	}
	return apiKey, nil
}

// credential extracts a bearer token or X-API-Key. ok is false when an
// Authorization header is present but malformed.
func credential(r *http.Request) (cred string, present bool, ok bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return "", true, false
		}
		cred = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		return cred, true, cred != ""
	}
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k, true, true
	}
	return "", false, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	writeJSONError(w, http.StatusUnauthorized, "unauthorized: "+detail)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
