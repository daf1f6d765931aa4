// Package logger expone el logger zap del proceso y su propagación por contexto.
//
// Init se llama una vez desde main; el resto del código usa L(), Named() o From(ctx).
// Los stores y canales reciben un *zap.Logger ya nombrado en su constructor,
// así los tests pueden inyectar zap.NewNop() o un observer sin tocar el global.
package logger

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configura el logger del proceso.
type Config struct {
	// Env: "dev" (consola con colores) o "prod" (JSON). Default: "dev".
	Env string
	// Level: "debug", "info", "warn", "error". Default: "info".
	Level string
	// ServiceName se agrega como campo "service" si no está vacío.
	ServiceName string
	// Version se agrega como campo "version" si no está vacío.
	Version string
}

var current atomic.Pointer[zap.Logger]

// Init construye el logger y lo instala. Solo la primera llamada tiene efecto.
func Init(cfg Config) {
	current.CompareAndSwap(nil, build(cfg))
}

// Replace instala l como logger global y devuelve el anterior.
func Replace(l *zap.Logger) *zap.Logger {
	return current.Swap(l)
}

// L devuelve el logger global; si nadie llamó a Init usa dev/info.
func L() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init(Config{Env: "dev", Level: "info"})
	return current.Load()
}

// Named devuelve el logger global con nombre de componente.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// With devuelve el logger global con campos fijos.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}

// S devuelve la variante sugared, para la CLI.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync vacía los buffers; va con defer en main.
func Sync() error {
	if l := current.Load(); l != nil {
		return l.Sync()
	}
	return nil
}

// OrNop devuelve l, o un logger mudo si l es nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func build(cfg Config) *zap.Logger {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Env, "prod") {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	zcfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		l, _ = zap.NewProduction()
	}
	if cfg.ServiceName != "" {
		l = l.With(zap.String("service", cfg.ServiceName))
	}
	if cfg.Version != "" {
		l = l.With(zap.String("version", cfg.Version))
	}
	return l
}

// ParseLevel traduce el nivel textual; desconocido o vacío es info.
func ParseLevel(lvl string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
