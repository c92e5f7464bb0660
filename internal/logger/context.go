package logger

import (
	"context"

	"go.uber.org/zap"
)

type fieldsKey struct{}

// WithFields 将日志字段附加到上下文，后续 FromContext 取出的 logger 自动携带
func WithFields(ctx context.Context, kv ...interface{}) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(kv) == 0 {
		return ctx
	}
	existing, _ := ctx.Value(fieldsKey{}).([]interface{})
	merged := make([]interface{}, 0, len(existing)+len(kv))
	merged = append(merged, existing...)
	merged = append(merged, kv...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

// FromContext 返回携带上下文字段的 SugaredLogger
func FromContext(ctx context.Context, kv ...interface{}) *zap.SugaredLogger {
	var fields []interface{}
	if ctx != nil {
		fields, _ = ctx.Value(fieldsKey{}).([]interface{})
	}
	all := make([]interface{}, 0, len(fields)+len(kv))
	all = append(all, fields...)
	all = append(all, kv...)
	return SW(all...)
}
