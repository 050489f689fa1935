package handlers

import (
	"context"

	"github.com/serroba/shortlink/internal/shortener"
)

type requestMetaKey struct{}

// RequestMeta holds HTTP request metadata recorded with clicks and creations.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Referrer  string
	Country   string
}

// ContextWithRequestMeta adds request metadata to context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFromContext extracts request metadata from context.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	if v, ok := ctx.Value(requestMetaKey{}).(RequestMeta); ok {
		return v
	}

	return RequestMeta{}
}

func visitorFromContext(ctx context.Context) shortener.Visitor {
	meta := RequestMetaFromContext(ctx)

	return shortener.Visitor{
		IP:        meta.ClientIP,
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
		Country:   meta.Country,
	}
}
