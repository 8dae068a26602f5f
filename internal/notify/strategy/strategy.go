// Package strategy defines the interface for channel delivery strategies.
package strategy

import (
	"context"

	"quakewatch/internal/pipeline"
	"quakewatch/internal/rules"
)

// IntentSender is implemented by each channel-type delivery mechanism.
type IntentSender interface {
	// Send delivers the intent's rendered message to the resolved target.
	// The target format depends on the sender type:
	//   - webhook: webhook URL
	//   - microblog: status-post API URL
	//   - messaging: message-send API URL
	Send(ctx context.Context, target string, intent *pipeline.Intent) error

	// Type returns the channel type this sender handles.
	Type() rules.ChannelType
}

// Registry manages delivery strategies by channel type.
type Registry struct {
	senders map[rules.ChannelType]IntentSender
}

// NewRegistry creates an empty sender registry.
func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[rules.ChannelType]IntentSender),
	}
}

// Register registers a sender strategy.
func (r *Registry) Register(sender IntentSender) {
	r.senders[sender.Type()] = sender
}

// Get retrieves a sender strategy by channel type.
func (r *Registry) Get(t rules.ChannelType) (IntentSender, bool) {
	sender, ok := r.senders[t]
	return sender, ok
}

// List returns all registered channel types.
func (r *Registry) List() []rules.ChannelType {
	types := make([]rules.ChannelType, 0, len(r.senders))
	for t := range r.senders {
		types = append(types, t)
	}
	return types
}
