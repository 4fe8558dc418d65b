package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// MutationOp names the change applied to an expense.
type MutationOp string

const (
	OpCreated MutationOp = "created"
	OpUpdated MutationOp = "updated"
	OpDeleted MutationOp = "deleted"
)

func (op MutationOp) Valid() bool {
	switch op {
	case OpCreated, OpUpdated, OpDeleted:
		return true
	}
	return false
}

// ExpenseMutationMessage announces that an expense changed.
// It carries only the id; consumers read the record from the store.
type ExpenseMutationMessage struct {
	ID        string     `json:"id"`
	Op        MutationOp `json:"op"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewExpenseMutationMessage creates a message stamped with the current time
func NewExpenseMutationMessage(id string, op MutationOp) *ExpenseMutationMessage {
	return &ExpenseMutationMessage{
		ID:        id,
		Op:        op,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseMutationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseMutationMessageFromJSON decodes and checks a message body
func ExpenseMutationMessageFromJSON(data []byte) (*ExpenseMutationMessage, error) {
	var msg ExpenseMutationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message without expense id")
	}
	if !msg.Op.Valid() {
		return nil, fmt.Errorf("unknown mutation op %q", msg.Op)
	}
	return &msg, nil
}
