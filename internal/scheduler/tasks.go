// Package scheduler wires asynq for time-based dispatcher wake-ups: an
// immediate nudge when an activity is enqueued and a delayed one at a
// reprocessing entry's debounce horizon. The Postgres queue stays
// authoritative; a fired task that finds nothing due is a no-op.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDispatcherWake = "engine.dispatcher.wake"

const TaskReprocessingDue = "reprocessing.due"

// DispatcherWakePayload is empty today; the type keeps the codec symmetric
// with the other tasks.
type DispatcherWakePayload struct{}

// ReprocessingDuePayload identifies which opportunity's debounce horizon
// elapsed.
type ReprocessingDuePayload struct {
	OpportunityID string `json:"opportunityId"`
}

func NewDispatcherWakeTask() (*asynq.Task, error) {
	data, err := json.Marshal(DispatcherWakePayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatcherWake, data), nil
}

func NewReprocessingDueTask(payload ReprocessingDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReprocessingDue, data), nil
}

func ParseReprocessingDuePayload(task *asynq.Task) (ReprocessingDuePayload, error) {
	var payload ReprocessingDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReprocessingDuePayload{}, err
	}
	return payload, nil
}
