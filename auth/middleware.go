package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logger"
)

// RequireOwner rejects requests without a valid bearer token with 401 and
// stores the owner in the request context otherwise.
func (v *Verifier) RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r)
		if err == nil {
			var owner ledger.OwnerID
			if owner, err = v.Verify(raw); err == nil {
				ctx := WithOwner(r.Context(), owner)
				ctx = logger.WithFields(ctx, zap.String("owner_id", string(owner)))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		logger.FromContext(r.Context()).Debug("authentication failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("WWW-Authenticate", `Bearer realm="ledger"`)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	})
}
