package helpers

import (
	"strconv"
	"strings"

	"github.com/dropDatabas3/gigsync/internal/errs"
)

var (
	ErrInvalidUserID = errs.New("UserError:InvalidUserId", "invalid user id")
	ErrInvalidType   = errs.New("UserError:InvalidType", "invalid type")
	ErrInvalidPath   = errs.New("UserError:InvalidPath", "invalid path")
)

// ParseUserID exige un entero positivo.
func ParseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidUserID.WithMessage("Invalid `user_id`: " + raw)
	}
	return id, nil
}

// ValidateTuple exige type no vacío, sin "/" ni "." (es un segmento de la
// clave de storage), y path presente.
func ValidateTuple(typ, path string) error {
	if typ == "" || strings.ContainsAny(typ, "/.") {
		return ErrInvalidType.WithMessage("Invalid `type`: " + typ)
	}
	if path == "" {
		return ErrInvalidPath.WithMessage("Missing `path`")
	}
	return nil
}
