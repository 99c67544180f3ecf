package consumer

import (
	"context"
	"encoding/json"
)

// Debezium operation codes.
const (
	OpCreate   = "c"
	OpUpdate   = "u"
	OpDelete   = "d"
	OpSnapshot = "r"
)

// DebeziumRelationshipRecord is a row of the relationships table as
// Debezium emits it.
type DebeziumRelationshipRecord struct {
	ID         int64           `json:"id"`
	FollowerID string          `json:"follower_id"`
	FollowedID string          `json:"followed_id"`
	CreatedAt  json.RawMessage `json:"created_at,omitempty"`
}

// DebeziumPayload is the payload field of a Debezium CDC message.
type DebeziumPayload struct {
	Before *DebeziumRelationshipRecord `json:"before"`
	After  *DebeziumRelationshipRecord `json:"after"`
	Op     string                      `json:"op"`
	TsMs   int64                       `json:"ts_ms"`
}

// DebeziumMessage is the top-level Debezium CDC message envelope.
type DebeziumMessage struct {
	Payload DebeziumPayload `json:"payload"`
}

// Decode parses a Debezium message. Messages produced without the schema
// envelope carry the payload at the top level.
func Decode(data []byte) (*DebeziumMessage, error) {
	var msg DebeziumMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Payload.Op == "" {
		var bare DebeziumPayload
		if err := json.Unmarshal(data, &bare); err != nil {
			return nil, err
		}
		msg.Payload = bare
	}
	return &msg, nil
}

// CDCEventHandler processes a decoded Debezium CDC message.
type CDCEventHandler interface {
	HandleCDCEvent(ctx context.Context, event *DebeziumMessage) error
}

// CDCEventConsumer manages the consumer lifecycle.
type CDCEventConsumer interface {
	Start(ctx context.Context) error
	Close() error
}
