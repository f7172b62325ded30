package compute

import (
	"time"
)

type Node struct {
	Id         string
	Uuid       string
	Prefix     string
	Num        int
	Hostname   string
	IpAddress  string
	Memory     Size
	FlavorId   string
	Status     NodeStatus
	ProviderId string
	Fqdn       string
	Created    time.Time
}

func (node *Node) IsRunning() bool {
	return node.Status == NodeStatusRunning
}
