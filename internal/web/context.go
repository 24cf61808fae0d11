package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/meterload/internal/core"
)

// withIngestSource tags ctx with the client address for ingest history.
// RemoteAddr has already been rewritten by TrustedRealIP.
func withIngestSource(ctx context.Context, r *http.Request) context.Context {
	src := "http:" + r.RemoteAddr
	if ua := r.UserAgent(); ua != "" {
		src += " (" + ua + ")"
	}
	return core.ContextWithSource(ctx, src)
}
