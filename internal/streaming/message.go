package streaming

import (
	"encoding/json"
	"errors"
)

type EventType string

const (
	EventPointsAdded  EventType = "points_added"
	EventTokenCreated EventType = "token_created"
	EventTokensSold   EventType = "tokens_sold"
	EventTokensBought EventType = "tokens_bought"
)

// Event is published once per confirmed gateway write.
type Event struct {
	Type       EventType `json:"type"`
	ChainID    uint64    `json:"chain_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	TxHash     string    `json:"tx_hash"`
	UserOpHash string    `json:"user_op_hash,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Subject    string    `json:"subject"`
	Token      string    `json:"token,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Value      string    `json:"value,omitempty"`
	Timestamp  int64     `json:"timestamp"`
}

func Encode(event Event) ([]byte, error) {
	if err := validate(event); err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

func Decode(payload []byte) (Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return Event{}, err
	}
	if err := validate(event); err != nil {
		return Event{}, err
	}
	return event, nil
}

func validate(event Event) error {
	switch {
	case event.Type == "":
		return errors.New("event type is required")
	case event.ChainID == 0:
		return errors.New("chain_id is required")
	case event.TxHash == "":
		return errors.New("tx_hash is required")
	case event.Subject == "":
		return errors.New("subject is required")
	}
	return nil
}
