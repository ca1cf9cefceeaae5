package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// withClient records the caller's IP and User-Agent on ctx for job logs.
func withClient(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, clientIP(r), r.UserAgent())
}
