package logger

import (
	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }
func Bytes(v int) zap.Field        { return zap.Int("bytes", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }

// Replicación

// Channel identifica el canal.
func Channel(v string) zap.Field { return zap.String("channel", v) }

// StoreID identifica el store dentro del canal.
func StoreID(v string) zap.Field { return zap.String("store_id", v) }

// TupleType y TuplePath identifican la tupla.
func TupleType(v string) zap.Field { return zap.String("type", v) }
func TuplePath(v string) zap.Field { return zap.String("path", v) }

// SHA es la identidad de un op.
func SHA(v string) zap.Field { return zap.String("sha", v) }

// Date es la fecha lógica (ms) de un op.
func Date(v int64) zap.Field { return zap.Int64("date", v) }

// RegID es el handle de registro del long polling.
func RegID(v string) zap.Field { return zap.String("reg_id", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Sistema

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
func Key(v string) zap.Field       { return zap.String("key", v) }
