package client

// Key naming for workflow data. The keyspace is two-level: one plain
// key per workflow header, one hash per (workflow, job class) pair with
// job uuids as fields.

// workflowKey returns the header key: workflows:{id}
func workflowKey(workflowID string) string { return "workflows:" + workflowID }

// workflowsPattern matches every workflow header key.
const workflowsPattern = "workflows:*"

// jobsKey returns the per-class job hash key: jobs:{wfid}:{klass}
func jobsKey(workflowID, klass string) string { return "jobs:" + workflowID + ":" + klass }

// jobsPattern matches every job hash of a workflow.
func jobsPattern(workflowID string) string { return "jobs:" + workflowID + ":*" }

// SuccessorLock returns the named-lock identifier serializing the
// "check ready then enqueue" pair for one successor of one workflow.
func SuccessorLock(workflowID, successorName string) string {
	return "enqueue_outgoing:" + workflowID + ":" + successorName
}
