package bus

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/cordum/packedge/core/infra/logging"
	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "edge.events"

var (
	errNilBus       = errors.New("nats bus not initialized")
	errEmptySubject = errors.New("empty subject")
	errNilPayload   = errors.New("nil payload")
)

// NatsBus is a thin publish-only wrapper over a NATS connection that speaks JSON.
type NatsBus struct {
	nc     *nats.Conn
	prefix string
}

// NewNatsBus dials NATS at the provided URL. Subjects passed to Publish are
// joined onto prefix.
func NewNatsBus(url, prefix string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("packedge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Error("bus", "disconnected from nats", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected to nats", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("bus", "connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc, prefix: normalizePrefix(prefix)}, nil
}

// Close drains and shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
	}
}

// Subject joins suffix onto the bus prefix.
func (b *NatsBus) Subject(suffix string) string {
	prefix := defaultSubjectPrefix
	if b != nil && b.prefix != "" {
		prefix = b.prefix
	}
	suffix = strings.Trim(strings.TrimSpace(suffix), ".")
	if suffix == "" {
		return ""
	}
	return prefix + "." + suffix
}

// Publish JSON-encodes payload and sends it on prefix.suffix. Delivery is
// fire-and-forget; there is no retry.
func (b *NatsBus) Publish(suffix string, payload any) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	subject := b.Subject(suffix)
	if subject == "" {
		return errEmptySubject
	}
	if payload == nil {
		return errNilPayload
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

func (b *NatsBus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

func (b *NatsBus) Status() string {
	if b == nil || b.nc == nil {
		return "UNKNOWN"
	}
	return b.nc.Status().String()
}

func (b *NatsBus) ConnectedURL() string {
	if b == nil || b.nc == nil {
		return ""
	}
	return b.nc.ConnectedUrl()
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		return defaultSubjectPrefix
	}
	return prefix
}
