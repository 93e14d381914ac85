package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// SessionHeader carries the visitor's session id in both directions.
const SessionHeader = httpmiddleware.HeaderSessionID

type sessionKey struct{}

func sessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// session resolves the session id from the request, generating one when
// missing or malformed, and echoes it on the response.
func (h *Handler) session(next handleFunc) handleFunc {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error {
		id := r.Header.Get(SessionHeader)
		if !isValidSessionID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(SessionHeader, id)

		ctx := context.WithValue(r.Context(), sessionKey{}, id)
		ctx = zctx.With(ctx, zap.String("session", id))
		return next(w, r.WithContext(ctx), ps)
	}
}

// isValidSessionID accepts 8 to 128 characters of [A-Za-z0-9_-].
func isValidSessionID(id string) bool {
	return httpmiddleware.ValidToken(id, 8, 128)
}
