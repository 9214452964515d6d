package models

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a control message sent to the interception proxy.
type MessageType string

const (
	MessageSkipWaiting  MessageType = "SKIP_WAITING"
	MessageClearCache   MessageType = "CLEAR_CACHE"
	MessageGetCacheInfo MessageType = "GET_CACHE_INFO"
)

// ControlMessage is the closed set of messages the proxy accepts.
type ControlMessage struct {
	Type MessageType `json:"type"`
}

// ParseControlMessage decodes and validates a raw control message body.
// Unknown message types are rejected so a typo cannot silently no-op.
func ParseControlMessage(raw []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse control message: %w", err)
	}

	switch msg.Type {
	case MessageSkipWaiting, MessageClearCache, MessageGetCacheInfo:
		return &msg, nil
	default:
		return nil, fmt.Errorf("unknown control message type '%s'", msg.Type)
	}
}

// UpstreamError is a valid-but-negative reply from the remote sheet API:
// the HTTP exchange succeeded but the payload carries an error shape.
// It must never be written to a cache store.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %s", e.Message)
}
