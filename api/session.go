package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/warp/field-ops/generic"
)

// Session headers set by the identity provider in front of the API.
const (
	HeaderEmployeeID = "X-Employee-ID"
	HeaderVanID      = "X-Van-ID"
	HeaderRole       = "X-Role"
)

type actorKey struct{}

// Session resolves the caller's Actor from the session headers.
// Requests without an employee header get generic.SystemActor.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := generic.SystemActor
		if emp := strings.TrimSpace(r.Header.Get(HeaderEmployeeID)); emp != "" {
			actor = generic.Actor{
				EmployeeID: generic.EmployeeID(emp),
				VanID:      generic.VanID(strings.TrimSpace(r.Header.Get(HeaderVanID))),
				Role:       generic.RoleEmployee,
			}
			switch role := generic.Role(strings.ToLower(r.Header.Get(HeaderRole))); role {
			case "":
			case generic.RoleEmployee, generic.RoleManager:
				actor.Role = role
			default:
				writeError(w, http.StatusBadRequest, "Invalid session", generic.Invalid("role", "unknown role %q", role))
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

// ActorFrom returns the session actor stored by Session.
func ActorFrom(ctx context.Context) generic.Actor {
	if actor, ok := ctx.Value(actorKey{}).(generic.Actor); ok {
		return actor
	}
	return generic.SystemActor
}

// RequestLogger logs one structured line per request.
func RequestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			if r.Method == http.MethodOptions {
				return
			}
			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= 300 {
				entry.Warn("api request")
			} else {
				entry.Info("api request")
			}
		})
	}
}
