package identity

import (
	"context"
	"strings"
)

type ctxKey string

const viewerKey ctxKey = "salon.viewer"

// Viewer is the authenticated user acting on appointments. The same id may be
// the client on one appointment and the stylist on another.
type Viewer struct {
	ID       string
	Timezone string
}

// WithViewer stores the viewer in context.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

// ViewerFromContext extracts the viewer if present.
func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(viewerKey).(Viewer)
	return v, ok && strings.TrimSpace(v.ID) != ""
}
