package pctx

import (
	"context"
	"testing"

	"github.com/storemill/storemill/src/internal/log"
	"go.uber.org/zap/zaptest"
)

// TestContext returns a context for use in a test; logs are routed to the
// test's output and the context is canceled when the test ends.
func TestContext(t testing.TB) context.Context {
	ctx := log.AttachLogger(context.Background(), zaptest.NewLogger(t).Named(t.Name()))
	ctx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	return ctx
}
