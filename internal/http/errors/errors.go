// Package errors define el AppError del servidor y su forma en el cable:
//
//	{"error": {"name": "ReducerError:TypeNotRegistered", "message": "..."}}
//
// Los clientes (store.Remote, table.Networked) decodifican esa misma forma.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dropDatabas3/gigsync/internal/errs"
)

// AppError es un error con status HTTP.
type AppError struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Name, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Name, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is compara por nombre, así las copias de WithMessage/WithCause siguen
// matcheando contra la variable base.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Name == e.Name
}

func New(status int, name, message string) *AppError {
	return &AppError{Name: name, Message: message, HTTPStatus: status}
}

// WithMessage devuelve una COPIA con otro mensaje.
func (e *AppError) WithMessage(msg string) *AppError {
	c := *e
	c.Message = msg
	return &c
}

// WithCause devuelve una COPIA con la causa original.
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

var (
	ErrBadRequest       = New(http.StatusBadRequest, "UserError:BadRequest", "La solicitud es inválida.")
	ErrInvalidJSON      = New(http.StatusBadRequest, "UserError:InvalidJson", "El cuerpo de la solicitud no es un JSON válido.")
	ErrBodyTooLarge     = New(http.StatusRequestEntityTooLarge, "UserError:BodyTooLarge", "El cuerpo excede el tamaño máximo permitido.")
	ErrUnauthorized     = New(http.StatusUnauthorized, "TokensError:Unauthorized", "No autorizado.")
	ErrNotFound         = New(http.StatusNotFound, "UserError:NotFound", "Recurso no encontrado.")
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, "UserError:MethodNotAllowed", "Método no permitido.")
	ErrConflict         = New(http.StatusConflict, "UserError:Conflict", "Conflicto con el estado actual.")
	ErrInternal         = New(http.StatusInternalServerError, "ServerError:Internal", "Error interno del servidor.")
	ErrUnavailable      = New(http.StatusServiceUnavailable, "ServerError:Unavailable", "Servicio no disponible.")
)

// statusFor mapea el prefijo del nombre de un errs.Error a un status.
func statusFor(name string) int {
	switch {
	case name == "PumpError:CallbackPending":
		return http.StatusConflict
	case strings.HasPrefix(name, "TokensError:"):
		return http.StatusUnauthorized
	case strings.HasPrefix(name, "UserError:"),
		strings.HasPrefix(name, "StorageError:"),
		strings.HasPrefix(name, "PumpError:"),
		strings.HasPrefix(name, "ReducerError:"):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// FromError convierte err en AppError. Los errs.Error de dominio mantienen su
// nombre; cualquier otro error es interno y su texto no se expone.
func FromError(err error) *AppError {
	var app *AppError
	if stderrors.As(err, &app) {
		return app
	}
	var de *errs.Error
	if stderrors.As(err, &de) {
		status := statusFor(de.Name)
		if status == http.StatusInternalServerError {
			return ErrInternal.WithCause(err)
		}
		return &AppError{Name: de.Name, Message: de.Message, HTTPStatus: status, Err: err}
	}
	return ErrInternal.WithCause(err)
}

type envelope struct {
	Error *AppError `json:"error"`
}

// WriteError escribe err con la forma {"error":{"name","message"}}.
func WriteError(w http.ResponseWriter, err error) {
	app := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(app.HTTPStatus)
	_ = json.NewEncoder(w).Encode(envelope{Error: app})
}
