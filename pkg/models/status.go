package models

// Status is a job workflow state.
type Status string

// Job workflow states. DELIVERED is terminal.
const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusQA         Status = "QA"
	StatusDelivered  Status = "DELIVERED"
)

// ActiveStatuses are the non-terminal states; jobs in these states count
// toward a worker's WIP and are re-evaluated by the sweep.
var ActiveStatuses = []Status{StatusPending, StatusAssigned, StatusInProgress, StatusQA}

// Valid reports whether s is a known workflow state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusQA, StatusDelivered:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool { return s == StatusDelivered }

// Priority is a job priority class.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Valid reports whether p is a known priority class.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// RiskColor is the delivery-risk classification of a job.
type RiskColor string

const (
	RiskGreen  RiskColor = "VERDE"
	RiskYellow RiskColor = "AMARILLO"
	RiskRed    RiskColor = "ROJO"
)

// EntryState is the lifecycle state of a time entry.
type EntryState string

const (
	EntryOpen   EntryState = "OPEN"
	EntryClosed EntryState = "CLOSED"
)

// Assignment event origins.
const (
	OriginManual       = "MANUAL"
	OriginSuggested    = "SUGGESTED"
	OriginAutoReassign = "AUTO_REASSIGN"
)

// Client notification kinds.
const (
	NoticeInfo     = "INFO"
	NoticeAlert    = "ALERTA"
	NoticeDelivery = "ENTREGA"
)

// Worker role tokens. Assistants are excluded from primary ranking but
// eligible for the support-suggestion list.
const (
	RoleTurner    = "tornero"
	RoleMiller    = "fresador"
	RoleWelder    = "soldador"
	RoleAssistant = "ayudante"
)

// ValidRole reports whether role is one of the known shop roles.
func ValidRole(role string) bool {
	switch role {
	case RoleTurner, RoleMiller, RoleWelder, RoleAssistant:
		return true
	}
	return false
}

// Default engine limits.
const (
	DefaultMinEstimateSec   = 900    // 15 min
	DefaultMaxEstimateSec   = 172800 // 48 h
	DefaultWIPMax           = 5
	DefaultSweepIntervalSec = 300
)
