package busx

import "fmt"

// Subjects builds the bus subjects from spec.md §6, parameterized by the
// configured namespace and node id.
type Subjects struct {
	Namespace string
	NodeID    string
}

func (s Subjects) base(peaID string) string {
	return fmt.Sprintf("%s/habitat/nodes/%s/pea/%s", s.Namespace, s.NodeID, peaID)
}

// Announce is the identity-announcement subject for a PEA.
func (s Subjects) Announce(peaID string) string { return s.base(peaID) + "/announce" }

// Status is the PeaRuntimeStatus subject for a PEA.
func (s Subjects) Status(peaID string) string { return s.base(peaID) + "/status" }

// StatusWildcard matches the status subject of every PEA on this node.
func (s Subjects) StatusWildcard() string {
	return fmt.Sprintf("%s/habitat/nodes/%s/pea/*/status", s.Namespace, s.NodeID)
}

// ServiceState is the subject a service publishes its runtime state on.
func (s Subjects) ServiceState(peaID, serviceTag string) string {
	return fmt.Sprintf("%s/services/%s/state", s.base(peaID), serviceTag)
}

// ServiceStateWildcard matches every service-state subject on this node.
func (s Subjects) ServiceStateWildcard() string {
	return fmt.Sprintf("%s/habitat/nodes/%s/pea/*/services/*/state", s.Namespace, s.NodeID)
}

// ServiceCommand is the subject commands are published to for a service.
func (s Subjects) ServiceCommand(peaID, serviceTag string) string {
	return fmt.Sprintf("%s/services/%s/command", s.base(peaID), serviceTag)
}

// Data is the telemetry sample subject for a sensor on a PEA.
func (s Subjects) Data(peaID, sensorTag string) string {
	return fmt.Sprintf("%s/data/%s", s.base(peaID), sensorTag)
}

// DataWildcard matches every telemetry sample on this node.
func (s Subjects) DataWildcard() string {
	return fmt.Sprintf("%s/habitat/nodes/%s/pea/*/data/*", s.Namespace, s.NodeID)
}

// SwimlaneAlarm is the alarm-sample subject for a PEA.
func (s Subjects) SwimlaneAlarm(peaID string) string { return s.base(peaID) + "/swimlane/alarm" }

// SwimlaneAlarmWildcard matches alarm samples from every PEA on this node.
func (s Subjects) SwimlaneAlarmWildcard() string {
	return fmt.Sprintf("%s/habitat/nodes/%s/pea/*/swimlane/alarm", s.Namespace, s.NodeID)
}

// SwimlaneState is the periodic scenario-state subject for a PEA.
func (s Subjects) SwimlaneState(peaID string) string { return s.base(peaID) + "/swimlane/state" }

// SwimlaneAction is the user-action-label subject for a PEA.
func (s Subjects) SwimlaneAction(peaID string) string { return s.base(peaID) + "/swimlane/action" }

// Deploy is the deploy-envelope subject for a PEA.
func (s Subjects) Deploy(peaID string) string { return s.base(peaID) + "/deploy" }

// Lifecycle is the {action} subject for start/stop/undeploy.
func (s Subjects) Lifecycle(peaID string) string { return s.base(peaID) + "/lifecycle" }

// AlarmAction is the fixed subject for operator-issued alarm actions.
func (s Subjects) AlarmAction() string { return s.Namespace + "/pol/alarm/action" }

// Topology is the fixed subject for topology replacement broadcasts.
func (s Subjects) Topology() string { return s.Namespace + "/pol/topology" }

// IngestionWildcard builds the ingestion wildcard for one configured
// prefix (e.g. "data" or "swimlane"), matching every PEA on this node.
func (s Subjects) IngestionWildcard(prefix string) string {
	return fmt.Sprintf("%s/habitat/nodes/%s/pea/*/%s/>", s.Namespace, s.NodeID, prefix)
}
