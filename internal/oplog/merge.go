package oplog

import "sort"

// Result describe lo que hizo Merge.
type Result struct {
	Oplog  Oplog
	Noop   bool
	Pruned int
}

// IsNoop aplica la regla de NOOP: el sha ya existe o un snapshot posterior ya lo cubre.
func IsNoop(l Oplog, op Op) bool {
	for _, o := range l {
		if o.SHA == op.SHA {
			return true
		}
		if o.IsSnapshot() && o.Date > op.Date {
			return true
		}
	}
	return false
}

// Merge inserta op en l sin modificar l. Si no es NOOP, reordena por fecha
// (orden estable) y compacta: busca desde el final el último snapshot en un
// índice > 0 y descarta todo lo anterior.
func Merge(l Oplog, op Op) Result {
	if IsNoop(l, op) {
		return Result{Oplog: l, Noop: true}
	}

	out := make(Oplog, 0, len(l)+1)
	out = append(out, l...)
	out = append(out, op)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	i := len(out) - 1
	for ; i > 0; i-- {
		if out[i].IsSnapshot() {
			break
		}
	}
	if i > 0 {
		return Result{Oplog: out[i:], Pruned: i}
	}
	return Result{Oplog: out}
}
