package callback

import (
	"context"
	"errors"
	"fmt"

	"github.com/rangesecurity/oracle/common"
)

var ErrNoDeliverer = errors.New("no deliverer registered for callback target kind")

// Deliverer sends a resolution notification to an external consumer.
// A nil error means the consumer accepted the notification.
type Deliverer interface {
	Deliver(ctx context.Context, target common.CallbackTarget, n common.Notification) error
}

type DelivererFunc func(ctx context.Context, target common.CallbackTarget, n common.Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, target common.CallbackTarget, n common.Notification) error {
	return f(ctx, target, n)
}

// Router dispatches to a Deliverer by target kind.
type Router struct {
	deliverers map[common.TargetKind]Deliverer
}

func NewRouter() *Router {
	return &Router{deliverers: make(map[common.TargetKind]Deliverer)}
}

func (r *Router) Handle(kind common.TargetKind, d Deliverer) *Router {
	r.deliverers[kind] = d
	return r
}

// Supports reports whether a deliverer exists for kind.
func (r *Router) Supports(kind common.TargetKind) bool {
	_, ok := r.deliverers[kind]
	return ok
}

func (r *Router) Deliver(ctx context.Context, target common.CallbackTarget, n common.Notification) error {
	d, ok := r.deliverers[target.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDeliverer, target.Kind)
	}
	return d.Deliver(ctx, target, n)
}
