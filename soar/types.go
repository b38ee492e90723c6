// Package soar routes alerts to response collaborators: containment,
// playbook orchestration and rule-learning feedback.
package soar

import (
	"context"
	"time"

	"argus/core"
)

// Collaborator names used in logs and metrics
const (
	CollaboratorContainment   = "containment"
	CollaboratorOrchestration = "orchestration"
	CollaboratorFeedback      = "feedback"
)

// DefaultCollaboratorTimeout bounds a single collaborator call
const DefaultCollaboratorTimeout = 5 * time.Second

// Containment blocks a source address
type Containment interface {
	Block(ctx context.Context, ip, reason string) error
}

// Orchestrator triggers a response playbook
type Orchestrator interface {
	Trigger(ctx context.Context, alertType, ip, details string) error
}

// FeedbackSubmitter turns an alert into a candidate rule and submits it
// for analyst review
type FeedbackSubmitter interface {
	SubmitForReview(ctx context.Context, alert *core.Alert) error
}

// BlockedIP is one containment record
type BlockedIP struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

// BlocklistReader lists blocked addresses for the status API
type BlocklistReader interface {
	List(ctx context.Context) ([]BlockedIP, error)
}
