package oplog

import (
	"encoding/json"
	"sort"
)

// Batch es la respuesta del stream de long polling.
// RegID vacío se codifica como null.
type Batch struct {
	RegID  string  `json:"-"`
	Stream []Entry `json:"-"`
}

type batchWire struct {
	RegID  *string `json:"reg_id"`
	Stream []Entry `json:"stream"`
}

func (b Batch) MarshalJSON() ([]byte, error) {
	w := batchWire{Stream: b.Stream}
	if b.RegID != "" {
		id := b.RegID
		w.RegID = &id
	}
	if w.Stream == nil {
		w.Stream = []Entry{}
	}
	return json.Marshal(w)
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	var w batchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	b.RegID = ""
	if w.RegID != nil {
		b.RegID = *w.RegID
	}
	b.Stream = w.Stream
	return nil
}

// SortEntries ordena por op.date ascendente, conservando el orden de llegada en empates.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Op.Date < entries[j].Op.Date })
}
