package amqp

import (
	"encoding/json"
	"time"

	"boleta/internal/core"
)

// PayslipRecalculatedMessage is published after every persisted recomputation
// pass. Consumers compare Version with the stored payslip to drop stale work.
type PayslipRecalculatedMessage struct {
	ID        string               `json:"id"`
	Version   int64                `json:"version"`
	Totals    core.FormattedTotals `json:"totals"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewPayslipRecalculatedMessage stamps the message with the current time.
func NewPayslipRecalculatedMessage(id string, version int64, totals core.FormattedTotals) *PayslipRecalculatedMessage {
	return &PayslipRecalculatedMessage{
		ID:        id,
		Version:   version,
		Totals:    totals,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PayslipRecalculatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PayslipRecalculatedMessageFromJSON decodes a message body.
func PayslipRecalculatedMessageFromJSON(data []byte) (*PayslipRecalculatedMessage, error) {
	var msg PayslipRecalculatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
