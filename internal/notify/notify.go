// Package notify fans job events out to dashboard subscribers. The engine
// publishes, the SSE hub streams; emission is fire-and-forget so a slow
// dashboard can never block a transition.
package notify

import (
	"time"

	"github.com/TheAlem/Torneria-Montero-Back-sub000/pkg/models"
)

// Event types published by the engine and the sweep.
const (
	EventStatusChanged = "status_changed"
	EventAssigned      = "assigned"
	EventReassigned    = "reassigned"
	EventRiskChanged   = "risk_changed"
	EventDelivered     = "delivered"
	EventAlert         = "alert"
)

// Event is one job update pushed to subscribers.
type Event struct {
	Type     string            `json:"type"`
	JobID    int64             `json:"job_id"`
	Code     string            `json:"code,omitempty"`
	Status   models.Status     `json:"status,omitempty"`
	Color    models.RiskColor  `json:"color,omitempty"`
	WorkerID *int64            `json:"worker_id,omitempty"`
	Message  string            `json:"message,omitempty"`
	At       time.Time         `json:"at"`
}

// Notifier receives job events. Implementations must not block.
type Notifier interface {
	Publish(ev Event)
}

// Nop discards every event; used by one-shot CLI commands.
type Nop struct{}

func (Nop) Publish(Event) {}
