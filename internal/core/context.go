package core

import "context"

type contextKey string

const ctxKeyUploadMeta contextKey = "upload_meta"

// UploadMeta describes where an upload came from. It is carried in the
// context so Ingest can record it without widening its signature.
type UploadMeta struct {
	FileName  string
	ClientIP  string
	UserAgent string
}

// ContextWithUploadMeta adds upload metadata to ctx for the ingest history.
func ContextWithUploadMeta(ctx context.Context, meta UploadMeta) context.Context {
	return context.WithValue(ctx, ctxKeyUploadMeta, meta)
}

// UploadMetaFromContext extracts upload metadata from ctx.
func UploadMetaFromContext(ctx context.Context) UploadMeta {
	if v, ok := ctx.Value(ctxKeyUploadMeta).(UploadMeta); ok {
		return v
	}
	return UploadMeta{}
}
