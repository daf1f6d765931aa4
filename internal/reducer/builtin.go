package reducer

import (
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/gigsync/internal/oplog"
)

// Counter parte del valor del primer op (0 si es null) y suma 1 por cada op siguiente.
var Counter = Func(func(log oplog.Oplog) (any, error) {
	if len(log) == 0 {
		return Undefined, nil
	}
	var base float64
	if log[0].IsSnapshot() {
		if err := json.Unmarshal(log[0].Value, &base); err != nil {
			return nil, fmt.Errorf("counter snapshot: %w", err)
		}
	}
	return int64(base) + int64(len(log)-1), nil
})

// LastWriteWins devuelve el contenido (payload o value) del op más reciente.
var LastWriteWins = Func(func(log oplog.Oplog) (any, error) {
	if len(log) == 0 {
		return Undefined, nil
	}
	return log[len(log)-1].Body(), nil
})

// Builtins devuelve un registro con los reducers incluidos: "counter" y "lww".
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("counter", Counter)
	r.Register("lww", LastWriteWins)
	return r
}

// ByName resuelve un reducer incluido por nombre.
func ByName(name string) (Reducer, bool) {
	switch name {
	case "counter":
		return Counter, true
	case "lww", "last_write_wins":
		return LastWriteWins, true
	}
	return nil, false
}
