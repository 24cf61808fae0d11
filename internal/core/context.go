package core

import "context"

type contextKey string

const ctxKeySource contextKey = "ingest_source"

// ContextWithSource records who submitted an ingest, e.g. "cli" or the
// client address of an HTTP request. It is stored with the ingest history.
func ContextWithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, ctxKeySource, source)
}

// SourceFromContext returns the submitter recorded by ContextWithSource.
func SourceFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeySource).(string); ok {
		return v
	}
	return ""
}
