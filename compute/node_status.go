package compute

// NodeStatus follows the machine states reported by vagrant.
type NodeStatus int

const (
	NodeStatusUnknown    = NodeStatus(0)
	NodeStatusPending    = NodeStatus(1)
	NodeStatusRunning    = NodeStatus(2)
	NodeStatusPoweroff   = NodeStatus(3)
	NodeStatusAborted    = NodeStatus(4)
	NodeStatusNotCreated = NodeStatus(5)
	NodeStatusDestroyed  = NodeStatus(6)
	NodeStatusFailed     = NodeStatus(7)
	NodeStatusSaved      = NodeStatus(8)
)

func (status NodeStatus) String() string {
	switch status {
	default:
		return "unknown"
	case NodeStatusPending:
		return "pending"
	case NodeStatusRunning:
		return "running"
	case NodeStatusPoweroff:
		return "poweroff"
	case NodeStatusAborted:
		return "aborted"
	case NodeStatusNotCreated:
		return "not_created"
	case NodeStatusDestroyed:
		return "destroyed"
	case NodeStatusFailed:
		return "failed"
	case NodeStatusSaved:
		return "saved"
	}
}

func NewNodeStatus(input string) NodeStatus {
	switch input {
	default:
		return NodeStatusUnknown
	case "pending":
		return NodeStatusPending
	case "running":
		return NodeStatusRunning
	case "poweroff":
		return NodeStatusPoweroff
	case "aborted":
		return NodeStatusAborted
	case "not_created":
		return NodeStatusNotCreated
	case "destroyed":
		return NodeStatusDestroyed
	case "failed":
		return NodeStatusFailed
	case "saved":
		return NodeStatusSaved
	}
}

func (status NodeStatus) MarshalText() ([]byte, error) {
	return []byte(status.String()), nil
}

func (status *NodeStatus) UnmarshalText(text []byte) error {
	*status = NewNodeStatus(string(text))
	return nil
}
