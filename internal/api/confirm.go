package api

import (
	"context"

	"github.com/noteforest/noteforest/internal/session"
)

type ctxKey int

const confirmKey ctxKey = iota

// confirmState carries the client's confirmation decision into the session
// store and the prompt back out of it for one request.
type confirmState struct {
	confirmed bool
	prompt    *session.ConfirmRequest
}

func withConfirmDecision(ctx context.Context, confirmed bool) (context.Context, *confirmState) {
	st := &confirmState{confirmed: confirmed}
	return context.WithValue(ctx, confirmKey, st), st
}

// RequestConfirmer returns a session.Confirmer that resolves confirmation
// prompts from the request context: the decision is whatever the client
// sent (confirm=true on the retry), and absent any decision the prompt is
// denied so nothing is discarded without an explicit ack.
func RequestConfirmer() session.Confirmer {
	return session.ConfirmerFunc(func(ctx context.Context, req session.ConfirmRequest) bool {
		st, ok := ctx.Value(confirmKey).(*confirmState)
		if !ok {
			return false
		}
		st.prompt = &req
		return st.confirmed
	})
}
