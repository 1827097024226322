package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/policyingest/internal/core"
	mw "github.com/JonMunkholm/policyingest/internal/web/middleware"
)

// withUploadMeta adds the client address, User-Agent and original file
// name to ctx for the ingest history.
func withUploadMeta(ctx context.Context, r *http.Request, fileName string) context.Context {
	return core.ContextWithUploadMeta(ctx, core.UploadMeta{
		FileName:  fileName,
		ClientIP:  mw.ClientIP(r), // RemoteAddr already rewritten by TrustedRealIP
		UserAgent: r.UserAgent(),
	})
}
