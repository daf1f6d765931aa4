// Package errs define el error con nombre que circula entre stores, canales y el servidor.
//
// El nombre (p.ej. "ReducerError:TypeNotRegistered") es la identidad del error:
// dos *Error con el mismo Name son equivalentes para errors.Is, aunque el mensaje
// o la causa difieran. Así un error decodificado del wire se compara contra los
// sentinelas locales sin conversión.
package errs

import "errors"

// Error es un error de dominio identificado por nombre.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// New crea un error con nombre y mensaje.
func New(name, message string) *Error {
	return &Error{Name: name, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Name + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Name + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por nombre.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

// WithMessage devuelve una copia con otro mensaje.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// WithCause devuelve una copia que envuelve err.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// NameOf devuelve el nombre del primer *Error en la cadena, o "" si no hay.
func NameOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Name
	}
	return ""
}
