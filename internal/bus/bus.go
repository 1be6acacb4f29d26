package bus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Kind names an event stream on the bus.
type Kind string

const (
	// AttemptCompleted carries an exchange.Result.
	AttemptCompleted Kind = "attempt-completed"
	// ProbeCompleted carries a probe.Result.
	ProbeCompleted Kind = "probe-completed"
)

type Handler func(payload any)

// Bus fans events out from the engine to independent observers. Delivery is
// synchronous and in subscription order; a faulting handler is isolated from
// the publisher and from sibling handlers.
type Bus struct {
	log logrus.FieldLogger

	mu   sync.RWMutex
	subs map[Kind][]Handler
}

func New(log logrus.FieldLogger) *Bus {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{log: log, subs: make(map[Kind][]Handler)}
}

func (b *Bus) Subscribe(kind Kind, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], h)
	b.mu.Unlock()
}

// Publish delivers payload to every handler currently subscribed to kind.
// The subscriber list may be mutated concurrently, so delivery iterates a
// snapshot taken under the lock.
func (b *Bus) Publish(kind Kind, payload any) {
	b.mu.RLock()
	hs := make([]Handler, len(b.subs[kind]))
	copy(hs, b.subs[kind])
	b.mu.RUnlock()

	for _, h := range hs {
		b.deliver(kind, h, payload)
	}
}

func (b *Bus) deliver(kind Kind, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("kind", string(kind)).Errorf("bus: subscriber panicked: %v", r)
		}
	}()
	h(payload)
}
