package domain

// ProjectForViewer returns the task as the given viewer should see it.
// A pure assignee sees a task awaiting approval as Completed; the stored
// task is never modified.
func ProjectForViewer(task Task, caps CapabilitySet) Task {
	if task.Status == TaskStatusForApproval && caps.PureAssignee() {
		task.Status = TaskStatusCompleted
	}
	return task
}
