package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic segments used when mirroring hub traffic to a broker.
// Consumers subscribe to these; changing them breaks existing subscribers.
const (
	// SuffixHub carries hub-level state.
	// Structure: {root}/hub/status
	SuffixHub = "hub"

	// SuffixAll is the pseudo rover segment used for events without a rover.
	SuffixAll = "all"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "rovers/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Event returns the topic for one mirrored hub message.
// Structure: {root}/{type in lower case}/{roverID}, roverID 0 maps to "all".
func (b *TopicBuilder) Event(messageType string, roverID int64) string {
	id := SuffixAll
	if roverID > 0 {
		id = strconv.FormatInt(roverID, 10)
	}
	return b.build(strings.ToLower(messageType), id)
}

// HubStatus is the retained topic carrying the hub's online/offline state.
func (b *TopicBuilder) HubStatus() string {
	return b.build(SuffixHub, "status")
}

// build constructs {root}/{suffix}/{identifier}.
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
