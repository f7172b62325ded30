package compute

import (
	"fmt"
)

type EventNodeCreated struct {
	node *Node
}

func NewEventNodeCreated(node *Node) *EventNodeCreated {
	return &EventNodeCreated{node: node}
}

func (e *EventNodeCreated) Name() string {
	return "node_created"
}

func (e *EventNodeCreated) Plain() map[string]string {
	data := nodePlain(e.node)
	data["event"] = e.Name()
	return data
}

type EventNodeDestroyed struct {
	node *Node
}

func NewEventNodeDestroyed(node *Node) *EventNodeDestroyed {
	return &EventNodeDestroyed{node: node}
}

func (e *EventNodeDestroyed) Name() string {
	return "node_destroyed"
}

func (e *EventNodeDestroyed) Plain() map[string]string {
	data := nodePlain(e.node)
	data["event"] = e.Name()
	return data
}

func nodePlain(node *Node) map[string]string {
	return map[string]string{
		"node_id":          node.Id,
		"node_uuid":        node.Uuid,
		"node_hostname":    node.Hostname,
		"node_fqdn":        node.Fqdn,
		"node_ipaddress":   node.IpAddress,
		"node_memory_mib":  fmt.Sprintf("%d", node.Memory.M()),
		"node_flavor":      node.FlavorId,
		"node_provider_id": node.ProviderId,
		"node_status":      node.Status.String(),
	}
}
