package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/makerledger/internal/auth"
	"github.com/erazemk/makerledger/internal/model"
	"github.com/erazemk/makerledger/internal/policy"
)

type contextKey string

const claimsKey contextKey = "claims"

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// AccountSource returns the stored state of a user account, or nil when the
// account does not exist.
type AccountSource interface {
	CurrentUser(ctx context.Context, id string) (*model.User, error)
}

// AuthMiddleware validates JWT from Authorization header, rejects revoked
// tokens and adds claims to context. When accounts is set, the role and
// makerspace assignments in the claims are replaced by the stored ones and
// tokens of deleted accounts are rejected.
func AuthMiddleware(secret string, revocations RevocationChecker, accounts AccountSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				jsonError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			tokenStr := strings.TrimPrefix(header, "Bearer ")
			claims, err := auth.ValidateToken(secret, tokenStr)
			if err != nil {
				jsonError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if revocations != nil {
				revoked, err := revocations.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					slog.Error("checking token revocation", "error", err)
					jsonError(w, http.StatusInternalServerError, "internal error")
					return
				}
				if revoked {
					jsonError(w, http.StatusUnauthorized, "token revoked")
					return
				}
			}

			if accounts != nil {
				user, err := accounts.CurrentUser(r.Context(), claims.UserID)
				if err != nil {
					slog.Error("loading token account", "error", err)
					jsonError(w, http.StatusInternalServerError, "internal error")
					return
				}
				if user == nil || user.DeletedAt != nil {
					jsonError(w, http.StatusUnauthorized, "account no longer active")
					return
				}
				claims.Username = user.Username
				claims.Role = user.Role
				claims.MakerspaceIDs = user.MakerspaceIDs
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUserAdmin rejects callers that may not manage user accounts.
func RequireUserAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		if claims == nil {
			jsonError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		if !policy.CanManageUsers(claims.Actor()) {
			jsonError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetClaims retrieves the JWT claims from the context.
func GetClaims(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// actorFrom returns the policy actor of the request. Requests without claims
// get the empty actor, which policy denies everything.
func actorFrom(r *http.Request) model.Actor {
	claims := GetClaims(r.Context())
	if claims == nil {
		return model.Actor{}
	}
	return claims.Actor()
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs HTTP requests with method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.RequestURI(),
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	})
}
