package exchange

import "context"

// Provider is the remote exchange API boundary. Domain-level rejections come
// back as a Status with a nil error; only transport-level failures return an
// error.
type Provider interface {
	Name() string
	Exchange(ctx context.Context, plan Plan) (Status, error)
}
