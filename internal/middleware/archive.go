package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const ArchiveKey contextKey = "archive"

// ArchiveHeader names the header that selects an archive
const ArchiveHeader = "X-Archive"

// Archive middleware extracts the archive name from the X-Archive header or
// the archive query parameter. A missing name selects the default archive.
func Archive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.Header.Get(ArchiveHeader))
		if name == "" {
			name = strings.TrimSpace(r.URL.Query().Get("archive"))
		}
		if name == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), ArchiveKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetArchive extracts the archive name from context
func GetArchive(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ArchiveKey).(string)
	return name, ok
}
