package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/bizstore/internal/observability"
	"github.com/odyssey-erp/bizstore/internal/platform/httpx"
	"github.com/odyssey-erp/bizstore/internal/shared"
)

const (
	headerUserID    = "X-User-ID"
	headerUserPIN   = "X-User-PIN"
	headerActorName = "X-Actor"

	maxActorNameLen = 100
)

// ActorResolver verifies a device operator's PIN.
type ActorResolver interface {
	VerifyPIN(ctx context.Context, userID, pin string) (shared.Actor, error)
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Actors  ActorResolver
	Metrics *observability.Metrics
}

// MiddlewareStack installs the bizstore middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	rateLimit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimit > 0 {
			rateLimit = cfg.Config.RateLimit
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	middlewares = append(middlewares,
		ActorMiddleware(cfg.Actors, logger),
		httprate.Limit(rateLimit, time.Minute, httprate.WithKeyFuncs(actorOrIPKey)),
	)
	return middlewares
}

// ActorMiddleware attaches the acting operator to the request context. A user
// id with its PIN is verified against the users collection; otherwise the
// request runs as an anonymous actor labelled by the optional X-Actor header.
// Roles only ever come from a verified user.
func ActorMiddleware(actors ActorResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(headerUserID))
			if userID == "" {
				actor := shared.Actor{Name: anonymousName(r.Header.Get(headerActorName))}
				next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
				return
			}
			if actors == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "user verification unavailable")
				return
			}
			actor, err := actors.VerifyPIN(r.Context(), userID, r.Header.Get(headerUserPIN))
			switch {
			case err == nil:
			case errors.Is(err, shared.ErrForbidden), errors.Is(err, shared.ErrNotFound):
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "unknown user or wrong pin")
				return
			default:
				logger.Warn("actor verification failed", slog.String("user_id", userID), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func anonymousName(raw string) string {
	name := []rune(strings.TrimSpace(raw))
	if len(name) > maxActorNameLen {
		name = name[:maxActorNameLen]
	}
	return string(name)
}

func actorOrIPKey(r *http.Request) (string, error) {
	if actor := shared.ActorFromContext(r.Context()); actor.ID != "" {
		return "user:" + actor.ID, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
