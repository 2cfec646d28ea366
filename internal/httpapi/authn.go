package httpapi

import (
	"net/http"

	"salesdeck.io/internal/auth"
)

const authHeader = "Authorization"

type userHandler func(w http.ResponseWriter, r *http.Request, user auth.User)

// gated runs gate on the bearer credential before next. A denial is written
// as the error envelope and next is never called.
func (a *API) gated(gate auth.Gate, next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get(authHeader))
		user, err := gate(r.Context(), token)
		if err != nil {
			if _, ok := auth.AsDenial(err); ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="salesdeck"`)
			}
			fail(w, r, err)
			return
		}
		ctx := auth.ContextWithUser(r.Context(), user)
		ctx = auth.ContextWithToken(ctx, token)
		next(w, r.WithContext(ctx), user)
	})
}
