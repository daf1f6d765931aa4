package middlewares

import "context"

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxUserIDKey    ctxKey = "user_id"
)

func setRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, id)
}

// WithUserID inyecta el user id ya validado.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, id)
}

// GetRequestID devuelve "" si no hay request id.
func GetRequestID(ctx context.Context) string {
	s, _ := ctx.Value(ctxRequestIDKey).(string)
	return s
}

// GetUserID devuelve 0 si la ruta no pasó por WithStoreToken.
func GetUserID(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxUserIDKey).(int64)
	return id
}
