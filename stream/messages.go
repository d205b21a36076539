package stream

import (
	"fmt"
	"strconv"
)

type MessageType string

const (
	MessageCommit MessageType = "commit"
	MessageReveal MessageType = "reveal"
	MessageAck    MessageType = "ack"
)

// Message is one parsed inbox or ack stream entry.
type Message struct {
	// StreamID is the redis entry id, MessageID the publisher's idempotency key.
	StreamID   string
	MessageID  string
	Type       MessageType
	QueryID    uint64
	Voter      string
	CommitHash string
	Value      string
	Salt       string
	Confidence int
}

func ParseMessage(streamID string, values map[string]interface{}) (*Message, error) {
	msgType, err := stringValue(values, "type")
	if err != nil {
		return nil, err
	}
	messageID, err := stringValue(values, "message_id")
	if err != nil {
		return nil, err
	}
	queryID_, err := stringValue(values, "query_id")
	if err != nil {
		return nil, err
	}
	queryID, err := strconv.ParseUint(queryID_, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("query_id ParseUint failed %s", err)
	}
	msg := &Message{
		StreamID:  streamID,
		MessageID: messageID,
		Type:      MessageType(msgType),
		QueryID:   queryID,
	}
	switch msg.Type {
	case MessageCommit:
		if msg.Voter, err = stringValue(values, "voter"); err != nil {
			return nil, err
		}
		if msg.CommitHash, err = stringValue(values, "commit_hash"); err != nil {
			return nil, err
		}
	case MessageReveal:
		if msg.Voter, err = stringValue(values, "voter"); err != nil {
			return nil, err
		}
		if msg.Value, err = stringValue(values, "value"); err != nil {
			return nil, err
		}
		if msg.Salt, err = stringValue(values, "salt"); err != nil {
			return nil, err
		}
		confidence, err := stringValue(values, "confidence")
		if err != nil {
			return nil, err
		}
		if msg.Confidence, err = strconv.Atoi(confidence); err != nil {
			return nil, fmt.Errorf("confidence Atoi failed %s", err)
		}
	case MessageAck:
	default:
		return nil, fmt.Errorf("unsupported message type %q", msgType)
	}
	return msg, nil
}

func stringValue(values map[string]interface{}, key string) (string, error) {
	if values[key] == nil {
		return "", fmt.Errorf("%s is nil", key)
	}
	s, ok := values[key].(string)
	if !ok {
		return "", fmt.Errorf("failed to parse %s", key)
	}
	return s, nil
}
