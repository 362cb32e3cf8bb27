package domain

// Capability is one reason an actor may act on a task.
type Capability uint8

const (
	CapAdmin Capability = 1 << iota
	CapObserver
	CapAssignee
	CapCreator
	CapSelfTask
)

// CapabilitySet is computed once per request and handed to the transition rules.
type CapabilitySet uint8

func (c CapabilitySet) Has(cap Capability) bool {
	return uint8(c)&uint8(cap) != 0
}

func (c CapabilitySet) HasAny(caps ...Capability) bool {
	for _, cap := range caps {
		if c.Has(cap) {
			return true
		}
	}
	return false
}

// CanFinalize reports whether the actor may move a task straight to Completed.
func (c CapabilitySet) CanFinalize() bool {
	return c.HasAny(CapAdmin, CapObserver, CapSelfTask)
}

// PureAssignee is an assignee with no oversight role on the task.
func (c CapabilitySet) PureAssignee() bool {
	return c.Has(CapAssignee) && !c.HasAny(CapAdmin, CapObserver, CapSelfTask)
}

func (c CapabilitySet) Empty() bool {
	return c == 0
}

// ResolveCapabilities evaluates what userID may do on task.
func ResolveCapabilities(task *Task, userID string, isAdmin bool) CapabilitySet {
	var set uint8
	if isAdmin {
		set |= uint8(CapAdmin)
	}
	if task.IsObserver(userID) {
		set |= uint8(CapObserver)
	}
	if task.IsAssignee(userID) {
		set |= uint8(CapAssignee)
	}
	if task.CreatedBy == userID {
		set |= uint8(CapCreator)
	}
	if task.IsSelfTask && task.CreatedBy == userID {
		set |= uint8(CapSelfTask)
	}
	return CapabilitySet(set)
}
