package utility

import (
	"sync"

	"github.com/google/uuid"
)

// ExecutionID identifies one server process run. It is attached to log lines
// and archived session records so that sessions of the same run can be grouped.
type ExecutionID = uuid.UUID

var (
	executionID     ExecutionID
	executionIDOnce sync.Once
)

func GetExecutionID() ExecutionID {
	executionIDOnce.Do(func() {
		executionID = uuid.Must(uuid.NewV7())
	})
	return executionID
}
