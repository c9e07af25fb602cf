package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
	HeaderUserRole = "X-User-Role"
)

// Identity trusts the identity headers set by the gateway in front of us.
// A request without X-User-ID is rejected; an unknown role falls back to
// student.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing X-User-ID"}`))
			return
		}

		u := domain.User{
			ID:       id,
			Username: strings.TrimSpace(r.Header.Get(HeaderUsername)),
			Role:     domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
		}
		if u.Username == "" {
			u.Username = id
		}
		if !u.Role.Valid() {
			u.Role = domain.RoleStudent
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func WithUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

func UserFromCtx(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(domain.User)
	return u, ok
}
