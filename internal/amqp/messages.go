package amqp

import (
	"encoding/json"
	"time"
)

// BackupRequestMessage asks the worker to export the log to Drive.
// It carries no data; the worker reads the current state from the store.
type BackupRequestMessage struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBackupRequestMessage creates a request stamped with the current time
func NewBackupRequestMessage(reason string) *BackupRequestMessage {
	return &BackupRequestMessage{
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BackupRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BackupRequestMessageFromJSON creates a message from JSON bytes
func BackupRequestMessageFromJSON(data []byte) (*BackupRequestMessage, error) {
	var msg BackupRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
