package alarm

// StaticCapability is a capability grant fixed at startup, for hosts where
// the permission cannot change at runtime.
type StaticCapability bool

// ExactAlarmsAllowed implements Capability.
func (c StaticCapability) ExactAlarmsAllowed() bool { return bool(c) }
