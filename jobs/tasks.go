package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRevenueRefresh rebuilds the revenue cache for one calendar year.
	TaskRevenueRefresh = "revenue:refresh"
)

// RevenueRefreshPayload names the year to refresh and the actor recorded in
// the cache meta row. Scheduled refreshes run as the system actor zero.
type RevenueRefreshPayload struct {
	Year  int   `json:"year"`
	Actor int64 `json:"actor"`
}

// NewRevenueRefreshTask constructs an Asynq task.
func NewRevenueRefreshTask(payload RevenueRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRevenueRefresh, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
