package api

import (
	"context"
	"time"
)

// FrameTimeout bounds the store work done for one inbound frame
const FrameTimeout = 10 * time.Second

// WithFrameTimeout derives the context one frame is processed under
func WithFrameTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, FrameTimeout)
}
