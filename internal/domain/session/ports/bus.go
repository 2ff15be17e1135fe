package ports

import (
	"context"

	"github.com/ManuGH/tgstream/internal/domain/session/lifecycle"
)

// Bus carries session lifecycle events to observers.
type Bus interface {
	Publish(ctx context.Context, topic string, event lifecycle.Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	C() <-chan lifecycle.Event
	Close() error
}
