package models

import "time"

type Turn struct {
	ID           int64      `json:"id"`
	CustomerName string     `json:"customer_name"`
	MobileNumber string     `json:"mobile_number"`
	ServiceType  string     `json:"service_type"`
	Status       string     `json:"status"`
	TurnNumber   int        `json:"turn_number"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

const (
	StatusWaiting   = "waiting"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

func (t Turn) IsWaiting() bool {
	return t.Status == StatusWaiting
}

var statusLabels = map[string]string{
	StatusWaiting:   "في الانتظار",
	StatusCompleted: "مكتمل",
	StatusCancelled: "ملغي",
}

// StatusLabel returns the display label for status, or status itself when it
// has none.
func StatusLabel(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}
