package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskLedgerIntegrity verifies every journal entry still balances.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskVarianceScan flags drawer counts stuck in review.
	TaskVarianceScan = "cashier:variance_scan"
	// TaskExpiryScan reports stock batches nearing expiry.
	TaskExpiryScan = "inventory:expiry_scan"
	// TaskEventRetention prunes raw money events past the retention window.
	TaskEventRetention = "ledger:event_retention"
)

// ChannelPayload scopes a task to one channel. A zero ChannelID means
// every channel.
type ChannelPayload struct {
	ChannelID int64 `json:"channelId"`
}

// NewChannelTask constructs a channel-scoped task of the given type.
func NewChannelTask(taskType string, payload ChannelPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

func decodeChannelPayload(t *asynq.Task) (ChannelPayload, error) {
	var payload ChannelPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(t.Payload(), &payload)
	return payload, err
}
