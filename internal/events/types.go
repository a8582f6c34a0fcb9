// Package events defines the workflow event kinds and subject naming scheme
// published over the event bus (see internal/events/bus).
package events

// Event kinds published on a workflow's subject space (§4.8).
const (
	KindTurnStarted     = "turn_started"
	KindAgentMessage    = "agent_message"
	KindArtifactWritten = "artifact_written"
	KindWarning         = "warning"
	KindWorkflowStatus  = "workflow_status"
)

// subjectPrefix is the fixed root of every workflow subject.
const subjectPrefix = "workflow"

// Subject builds the subject a single event kind for one workflow is
// published on: workflow.<workflow_id>.<event_kind>.
func Subject(workflowID, kind string) string {
	return subjectPrefix + "." + workflowID + "." + kind
}

// WildcardSubject builds the subscription pattern that matches every event
// kind published for a single workflow: workflow.<workflow_id>.>
func WildcardSubject(workflowID string) string {
	return subjectPrefix + "." + workflowID + ".>"
}
