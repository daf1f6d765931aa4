package middlewares

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/gigsync/internal/auth"
	httperrors "github.com/dropDatabas3/gigsync/internal/http/errors"
	"github.com/dropDatabas3/gigsync/internal/http/helpers"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
)

// WithStoreToken valida {user_id} de la ruta y ?store_token= contra checker.
// El user id queda en el contexto y en el logger del request.
func WithStoreToken(checker auth.Checker) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := helpers.ParseUserID(chi.URLParam(r, "user_id"))
			if err != nil {
				httperrors.WriteError(w, err)
				return
			}
			if err := checker.Check(r.Context(), userID, r.URL.Query().Get("store_token")); err != nil {
				logger.From(r.Context()).Debug("store token rejected", logger.Err(err))
				httperrors.WriteError(w, err)
				return
			}
			ctx := WithUserID(r.Context(), userID)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(strconv.FormatInt(userID, 10))))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
