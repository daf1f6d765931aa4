// Package oplogs contiene el controller de las rutas /user/{user_id}/oplog.
package oplogs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/gigsync/internal/auth"
	httperrors "github.com/dropDatabas3/gigsync/internal/http/errors"
	"github.com/dropDatabas3/gigsync/internal/http/helpers"
	mw "github.com/dropDatabas3/gigsync/internal/http/middlewares"
	svc "github.com/dropDatabas3/gigsync/internal/http/services/oplogs"
	"github.com/dropDatabas3/gigsync/internal/observability/logger"
	"github.com/dropDatabas3/gigsync/internal/oplog"
)

// Controller maneja get/push/stream de oplogs y la revocación de sesiones.
type Controller struct {
	service svc.Service
}

func NewController(service svc.Service) *Controller {
	return &Controller{service: service}
}

func tupleParams(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	typ, path := q.Get("type"), q.Get("path")
	return typ, path, helpers.ValidateTuple(typ, path)
}

// Get maneja GET /user/{user_id}/oplog?type=&path=
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	typ, path, err := tupleParams(r)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	l, err := c.service.Get(r.Context(), mw.GetUserID(r.Context()), typ, path)
	if err != nil {
		logger.From(r.Context()).Error("oplog get failed", logger.TupleType(typ), logger.TuplePath(path), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, l)
}

// Post maneja POST /user/{user_id}/oplog?type=&path= con body op.
func (c *Controller) Post(w http.ResponseWriter, r *http.Request) {
	typ, path, err := tupleParams(r)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	var op oplog.Op
	if err := helpers.ReadJSON(w, r, &op); err != nil {
		httperrors.WriteError(w, oplog.ErrInvalidOp.WithCause(err))
		return
	}
	if _, err := c.service.Push(r.Context(), mw.GetUserID(r.Context()), typ, path, op); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteOK(w)
}

// Stream maneja GET /user/{user_id}/oplog/stream?reg_id= (long poll).
func (c *Controller) Stream(w http.ResponseWriter, r *http.Request) {
	b, err := c.service.Listen(r.Context(), mw.GetUserID(r.Context()), r.URL.Query().Get("reg_id"))
	if err != nil {
		// el cliente se fue: no hay a quién responder
		if r.Context().Err() != nil && errors.Is(err, r.Context().Err()) {
			return
		}
		httperrors.WriteError(w, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, b)
}

// RevokeSession maneja DELETE /user/{user_id}/session/{store_token}.
// Solo descarta el token de la cache; la próxima validación vuelve a la tabla.
func (c *Controller) RevokeSession(w http.ResponseWriter, r *http.Request) {
	userID, err := helpers.ParseUserID(chi.URLParam(r, "user_id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	raw := chi.URLParam(r, "store_token")
	tok, err := auth.ParseStoreToken(raw)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if tok.UserID != userID {
		httperrors.WriteError(w, auth.ErrInvalidStoreToken.WithMessage("Invalid `store_token`: user mismatch "+strconv.FormatInt(userID, 10)))
		return
	}
	c.service.Revoke(raw)
	helpers.WriteOK(w)
}
