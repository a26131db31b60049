package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/billing_backend/appctx"
)

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyOperator      = appctx.ContextKeyOperator
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetOperatorFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyOperator)
}

func SetOperatorInContext(ctx context.Context, operator string) context.Context {
	return appctx.Set(ctx, ContextKeyOperator, operator)
}

// CorrelationIdOrEmpty is a convenience for audit columns.
func CorrelationIdOrEmpty(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := GetCorrelationIdFromContext(ctx)
	return v
}
