// Package oplog modela la unidad de cambio replicada y el log ordenado de una tupla (type, path).
package oplog

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/dropDatabas3/gigsync/internal/errs"
)

// ErrInvalidOp se devuelve cuando un op recibido no tiene sha, fecha o contenido.
var ErrInvalidOp = errs.New("UserError:InvalidOpBody", "invalid op body")

// Op es un cambio inmutable identificado por su sha.
// Exactamente uno de Payload (delta) o Value (snapshot) está presente.
type Op struct {
	Date    int64           `json:"date"`
	SHA     string          `json:"sha"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
}

// Oplog es la secuencia de ops de una tupla ordenada por Date ascendente.
type Oplog []Op

// Entry es un op dirigido a una tupla, tal como viaja en el stream.
type Entry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Op   Op     `json:"op"`
}

var jsonNull = []byte("null")

// IsSnapshot indica si el op lleva un valor materializado (presente y no null).
// 0, false y "" también cuentan.
func (o Op) IsSnapshot() bool {
	v := bytes.TrimSpace(o.Value)
	return len(v) > 0 && !bytes.Equal(v, jsonNull)
}

// Body devuelve el contenido hasheado del op: el payload o, si no hay, el value.
func (o Op) Body() json.RawMessage {
	if len(o.Payload) > 0 {
		return o.Payload
	}
	return o.Value
}

// Validate rechaza ops sin sha, con fecha cero o sin payload ni value.
func (o Op) Validate() error {
	switch {
	case o.SHA == "":
		return ErrInvalidOp.WithMessage("missing sha")
	case o.Date == 0:
		return ErrInvalidOp.WithMessage("missing date")
	case len(o.Payload) == 0 && len(o.Value) == 0:
		return ErrInvalidOp.WithMessage("missing payload or value")
	}
	return nil
}

// NewDelta crea un op de payload con sha = hash(date, JSON(payload)).
func NewDelta(date int64, payload any) (Op, error) {
	b, err := Marshal(payload)
	if err != nil {
		return Op{}, err
	}
	return Op{Date: date, SHA: Hash(strconv.FormatInt(date, 10), string(b)), Payload: b}, nil
}

// NewSnapshot crea un op de valor materializado con sha = hash(date, JSON(value)).
func NewSnapshot(date int64, value any) (Op, error) {
	b, err := Marshal(value)
	if err != nil {
		return Op{}, err
	}
	return Op{Date: date, SHA: Hash(strconv.FormatInt(date, 10), string(b)), Value: b}, nil
}

// Empty devuelve el oplog inicial: solo el sentinela {date:0, value:null}.
func Empty() Oplog {
	return Oplog{{Date: 0, SHA: Hash("0", "null"), Value: json.RawMessage("null")}}
}

// Clone copia el slice; los ops son inmutables y se comparten.
func (l Oplog) Clone() Oplog {
	out := make(Oplog, len(l))
	copy(out, l)
	return out
}

// Has indica si algún op del log tiene ese sha.
func (l Oplog) Has(sha string) bool {
	for _, o := range l {
		if o.SHA == sha {
			return true
		}
	}
	return false
}

// Newest devuelve la fecha más alta del log (0 si está vacío).
func (l Oplog) Newest() int64 {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].Date
}
