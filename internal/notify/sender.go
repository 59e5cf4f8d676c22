// Package notify delivers throttled coaching notifications through the
// configured messaging transport.
package notify

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/commforge/pulse/internal/models"
)

// Sender is one outbound messaging transport. Broadcast is part of the
// contract but no configuration path currently enables it; the direct path
// is the one exercised.
type Sender interface {
	Name() string
	SendDirect(ctx context.Context, userID, text string) (*models.SendReceipt, error)
	Broadcast(ctx context.Context, channelID, text string) (*models.SendReceipt, error)
}

// Manager holds the configured senders and selects the direct-delivery one.
type Manager struct {
	senders map[string]Sender
	direct  string
}

// NewManager creates a manager. directName selects which registered sender
// handles direct notifications; empty picks the first registered.
func NewManager(directName string, senders ...Sender) (*Manager, error) {
	m := &Manager{senders: make(map[string]Sender, len(senders)), direct: directName}
	for _, s := range senders {
		if _, dup := m.senders[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate sender %q", s.Name())
		}
		m.senders[s.Name()] = s
		if m.direct == "" {
			m.direct = s.Name()
		}
		log.Printf("[notify] registered sender %s", s.Name())
	}
	if len(m.senders) == 0 {
		return nil, fmt.Errorf("no senders configured")
	}
	if _, ok := m.senders[m.direct]; !ok {
		return nil, fmt.Errorf("direct sender %q not registered", m.direct)
	}
	return m, nil
}

// Direct returns the sender handling direct notifications.
func (m *Manager) Direct() Sender {
	return m.senders[m.direct]
}

// Names returns the registered sender names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.senders))
	for name := range m.senders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
