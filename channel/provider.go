// Package channel abstracts the outbound transports (email, LinkedIn, web
// forms) behind one send contract, and the matching inbound reply fetchers.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransient marks a failure worth retrying with backoff: timeouts,
// connection resets, provider 5xx. Wrap with %w.
var ErrTransient = errors.New("transient channel error")

// SendRequest carries one outbound message. Content is opaque rendered
// text from the template collaborator.
type SendRequest struct {
	Recipient      string
	Subject        string
	Body           string
	IdempotencyKey string
}

// SendResult is the provider outcome. Permanent signals a bounce or
// unsubscribe-class rejection: the lead must be suppressed, no retry.
type SendResult struct {
	Success           bool
	Status            string // SENT, DELIVERED, BOUNCED, FAILED
	ProviderMessageID string
	ErrorMessage      string
	Permanent         bool
}

// Provider is the uniform send contract implemented per channel. Send must
// be safe to call twice with the same idempotency key; providers either
// dedup on it or rely on the engine skipping resubmission.
type Provider interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// InboundReply is a raw unread reply as fetched from a provider, before
// lead correlation.
type InboundReply struct {
	Provider   string
	MessageID  string
	FromEmail  string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// ReplyFetcher pulls unread replies from a provider inbox. The provider
// message id keyes idempotent ingestion.
type ReplyFetcher interface {
	Provider() string
	Channel() string
	FetchUnread(ctx context.Context) ([]InboundReply, error)
}

// Registry maps channel names to providers. Built once at construction
// time; the sequencer never branches on channel strings itself.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the provider for the channel or an error naming the missing
// channel; the orchestrator treats this as a configuration failure.
func (r *Registry) Get(channel string) (Provider, error) {
	p, ok := r.providers[channel]
	if !ok {
		return nil, fmt.Errorf("no provider registered for channel %q", channel)
	}
	return p, nil
}

// Channels returns the registered channel names.
func (r *Registry) Channels() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
