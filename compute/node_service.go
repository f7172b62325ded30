package compute

import (
	"errors"
	"sort"
)

var ErrNodeNotFound = errors.New("node not found")
var ErrNodeAlreadyExists = errors.New("node already exists")

type NodeListOptions struct {
	Prefix string
}

type NodeRepository interface {
	List(options NodeListOptions) ([]*Node, error)
	Get(id string) (*Node, error)
	Save(node *Node) error
	Delete(id string) error
}

type NodeService struct {
	NodeRepository
}

func NewNodeService(repo NodeRepository) *NodeService {
	return &NodeService{repo}
}

// Numbered returns nodes of a prefix ordered oldest first.
func (service *NodeService) Numbered(prefix string) ([]*Node, error) {
	nodes, err := service.List(NodeListOptions{Prefix: prefix})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Num != nodes[j].Num {
			return nodes[i].Num < nodes[j].Num
		}
		return nodes[i].Created.Before(nodes[j].Created)
	})
	return nodes, nil
}
