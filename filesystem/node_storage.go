package filesystem

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"subuk/vagrantd/compute"
	"subuk/vagrantd/util"
	"sync"
)

type NodeStorage struct {
	filename string
	mu       *sync.RWMutex
}

func NewNodeStorage(filename string) (*NodeStorage, error) {
	filename = util.ExpandHomeDir(filename)
	dirname := filepath.Dir(filename)
	if err := os.MkdirAll(dirname, 0755); err != nil {
		return nil, util.NewError(err, "cannot create base directory")
	}
	storage := &NodeStorage{filename: filename, mu: &sync.RWMutex{}}
	return storage, nil
}

func (repo *NodeStorage) load() ([]*compute.Node, error) {
	content, err := ioutil.ReadFile(repo.filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*compute.Node{}, nil
		}
		return nil, util.NewError(err, "cannot open storage file")
	}
	nodes := []*compute.Node{}
	if err := json.Unmarshal(content, &nodes); err != nil {
		return nil, util.NewError(err, "cannot parse nodes file")
	}
	return nodes, nil
}

func (repo *NodeStorage) save(nodes []*compute.Node) error {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Id < nodes[j].Id
	})
	content, err := json.MarshalIndent(&nodes, "", "  ")
	if err != nil {
		return util.NewError(err, "cannot marshal nodes")
	}
	tmpname := repo.filename + ".tmp"
	if err := ioutil.WriteFile(tmpname, content, 0644); err != nil {
		return util.NewError(err, "cannot write nodes file")
	}
	if err := os.Rename(tmpname, repo.filename); err != nil {
		return util.NewError(err, "cannot replace nodes file")
	}
	return nil
}

func (repo *NodeStorage) List(options compute.NodeListOptions) ([]*compute.Node, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	nodes, err := repo.load()
	if err != nil {
		return nil, err
	}
	if options.Prefix == "" {
		return nodes, nil
	}
	filtered := []*compute.Node{}
	for _, node := range nodes {
		if node.Prefix == options.Prefix {
			filtered = append(filtered, node)
		}
	}
	return filtered, nil
}

func (repo *NodeStorage) Get(id string) (*compute.Node, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	nodes, err := repo.load()
	if err != nil {
		return nil, util.NewError(err, "cannot load nodes")
	}
	for _, node := range nodes {
		if node.Id == id {
			return node, nil
		}
	}
	return nil, compute.ErrNodeNotFound
}

func (repo *NodeStorage) Save(node *compute.Node) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	nodes, err := repo.load()
	if err != nil {
		return err
	}
	found := false
	for idx, n := range nodes {
		if n.Id == node.Id {
			nodes[idx] = node
			found = true
		}
	}
	if !found {
		nodes = append(nodes, node)
	}
	return repo.save(nodes)
}

func (repo *NodeStorage) Delete(id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	nodes, err := repo.load()
	if err != nil {
		return err
	}
	remaining := []*compute.Node{}
	for _, n := range nodes {
		if n.Id != id {
			remaining = append(remaining, n)
		}
	}
	if len(remaining) == len(nodes) {
		return compute.ErrNodeNotFound
	}
	return repo.save(remaining)
}
