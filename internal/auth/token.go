// Package auth valida los store_token con los que los clientes acceden al servidor de oplogs.
package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/gigsync/internal/errs"
)

var ErrInvalidStoreToken = errs.New("TokensError:InvalidStoreToken", "invalid store token")

const (
	MinTokenTimeout = time.Second
	MaxTokenTimeout = 31 * 24 * time.Hour
)

// StoreToken es la forma expandida de "store_<user_id>_<created_ms>_<timeout_ms>_<store_id>_<check>".
type StoreToken struct {
	Raw     string
	UserID  int64
	Created time.Time
	Timeout time.Duration
	StoreID string
	Check   string
}

// ParseStoreToken expande y valida la forma del token; no consulta la tabla.
func ParseStoreToken(raw string) (StoreToken, error) {
	invalid := ErrInvalidStoreToken.WithMessage("Invalid `store_token`: " + raw)

	parts := strings.Split(raw, "_")
	if len(parts) != 6 || parts[0] != "store" {
		return StoreToken{}, invalid
	}
	user, err1 := strconv.ParseInt(parts[1], 10, 64)
	created, err2 := strconv.ParseInt(parts[2], 10, 64)
	timeout, err3 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || user <= 0 || created <= 0 {
		return StoreToken{}, invalid
	}
	t := StoreToken{
		Raw:     raw,
		UserID:  user,
		Created: time.UnixMilli(created),
		Timeout: time.Duration(timeout) * time.Millisecond,
		StoreID: parts[4],
		Check:   parts[5],
	}
	if t.Timeout < MinTokenTimeout || t.Timeout > MaxTokenTimeout {
		return StoreToken{}, invalid
	}
	return t, nil
}
