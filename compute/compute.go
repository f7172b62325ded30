package compute

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"subuk/vagrantd/util"
	"subuk/vagrantd/vagrantfile"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var ErrAddressInUse = errors.New("address already in use")
var ErrAddressOutOfPool = errors.New("address is outside of the pool")
var ErrInvalidParams = errors.New("invalid parameters")

const DiscoveryDomain = "local"

type Event interface {
	Name() string
	Plain() map[string]string
}

type EventPublisher interface {
	Publish(event Event) error
}

type VagrantfileRenderer interface {
	Render(values vagrantfile.Values) ([]byte, error)
}

type AddressAllocator interface {
	Allocate(used []string) (string, error)
	Contains(ip string) bool
}

type Provisioner interface {
	Up(ctx context.Context, node *Node, vagrantfile []byte) (string, error)
	Destroy(ctx context.Context, node *Node) error
	Status(ctx context.Context, node *Node) (NodeStatus, error)
}

type Service struct {
	nodes       *NodeService
	flavors     *FlavorService
	pool        AddressAllocator
	tmpl        VagrantfileRenderer
	prov        Provisioner
	epub        EventPublisher
	parallelism int

	// guards id and address allocation until the pending node is saved
	mu *sync.Mutex
}

func New(nodes *NodeService, flavors *FlavorService, pool AddressAllocator, tmpl VagrantfileRenderer, prov Provisioner, epub EventPublisher, parallelism int) *Service {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Service{
		nodes:       nodes,
		flavors:     flavors,
		pool:        pool,
		tmpl:        tmpl,
		prov:        prov,
		epub:        epub,
		parallelism: parallelism,
		mu:          &sync.Mutex{},
	}
}

type NodeCreateParams struct {
	Id        string
	Prefix    string
	FlavorId  string
	Memory    Size
	IpAddress string
}

func (service *Service) NodeList(options NodeListOptions) ([]*Node, error) {
	return service.nodes.List(options)
}

func (service *Service) NodeGet(id string) (*Node, error) {
	return service.nodes.Get(id)
}

func (service *Service) FlavorList() ([]*Flavor, error) {
	return service.flavors.List()
}

func (service *Service) FlavorGet(id string) (*Flavor, error) {
	return service.flavors.Get(id)
}

func (service *Service) NodeCreate(ctx context.Context, params NodeCreateParams) (*Node, error) {
	params.Prefix = normalizePrefix(params.Prefix)
	node, content, err := service.reserve(params)
	if err != nil {
		return nil, err
	}

	providerId, err := service.prov.Up(ctx, node, content)
	if err != nil {
		node.Status = NodeStatusFailed
		if saveErr := service.update(node); saveErr != nil {
			return nil, util.NewError(saveErr, "cannot save failed node %s", node.Id)
		}
		return node, util.NewError(err, "cannot provision node %s", node.Id)
	}
	node.ProviderId = providerId
	node.Status = NodeStatusRunning
	if err := service.update(node); err != nil {
		if IsNotFound(err) {
			service.prov.Destroy(ctx, node) // Ignore error
			return nil, util.NewError(err, "node %s was deleted while provisioning", node.Id)
		}
		return nil, util.NewError(err, "cannot save node")
	}
	if err := service.epub.Publish(NewEventNodeCreated(node)); err != nil {
		service.prov.Destroy(ctx, node) // Ignore error
		service.remove(node.Id)         // Ignore error
		return nil, util.NewError(err, "cannot publish event node created")
	}
	return node, nil
}

// update saves the node only while it is still stored, a concurrent
// NodeDelete always wins.
func (service *Service) update(node *Node) error {
	service.mu.Lock()
	defer service.mu.Unlock()
	if _, err := service.nodes.Get(node.Id); err != nil {
		return err
	}
	return service.nodes.Save(node)
}

func (service *Service) remove(id string) error {
	service.mu.Lock()
	defer service.mu.Unlock()
	return service.nodes.Delete(id)
}

// reserve resolves id, flavor and address, renders the vagrantfile and
// stores the node as pending so that concurrent creations never collide.
func (service *Service) reserve(params NodeCreateParams) (*Node, []byte, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	existing, err := service.nodes.List(NodeListOptions{})
	if err != nil {
		return nil, nil, util.NewError(err, "cannot list nodes")
	}

	node := &Node{
		Uuid:     uuid.New().String(),
		Prefix:   params.Prefix,
		Memory:   params.Memory,
		FlavorId: params.FlavorId,
		Status:   NodeStatusPending,
		Created:  time.Now().UTC(),
	}

	var flavor *Flavor
	switch {
	case params.FlavorId != "":
		flavor, err = service.flavors.Get(params.FlavorId)
	case params.Memory.IsZero():
		flavor, err = service.flavors.Default()
	}
	if err != nil {
		return nil, nil, util.NewError(err, "cannot resolve flavor %q", params.FlavorId)
	}
	if flavor != nil {
		node.FlavorId = flavor.Id
		if params.Memory.IsZero() {
			node.Memory = flavor.Memory
		}
	}

	node.Id, node.Num = nextId(params, existing)
	for _, other := range existing {
		if other.Id == node.Id {
			return nil, nil, util.NewError(ErrNodeAlreadyExists, "id %s", node.Id)
		}
	}
	node.Hostname = node.Id
	node.Fqdn = node.Id + "." + DiscoveryDomain

	used := []string{}
	for _, other := range existing {
		used = append(used, other.IpAddress)
	}
	if params.IpAddress != "" {
		if util.ArrayContainsString(used, params.IpAddress) {
			return nil, nil, util.NewError(ErrAddressInUse, "%s", params.IpAddress)
		}
		if !service.pool.Contains(params.IpAddress) {
			return nil, nil, util.NewError(ErrAddressOutOfPool, "%s", params.IpAddress)
		}
		node.IpAddress = params.IpAddress
	} else {
		ip, err := service.pool.Allocate(used)
		if err != nil {
			return nil, nil, util.NewError(err, "cannot allocate address")
		}
		node.IpAddress = ip
	}

	content, err := service.render(node)
	if err != nil {
		return nil, nil, err
	}
	if err := service.nodes.Save(node); err != nil {
		return nil, nil, util.NewError(err, "cannot save pending node")
	}
	return node, content, nil
}

func nextId(params NodeCreateParams, existing []*Node) (string, int) {
	if params.Id != "" {
		return params.Id, 0
	}
	if params.Prefix != "" {
		num := 0
		for _, other := range existing {
			if other.Prefix == params.Prefix && other.Num > num {
				num = other.Num
			}
		}
		num++
		return fmt.Sprintf("%s-%d", params.Prefix, num), num
	}
	taken := map[string]struct{}{}
	for _, other := range existing {
		taken[other.Id] = struct{}{}
	}
	for {
		id := petname.Generate(2, "-")
		if _, exists := taken[id]; !exists {
			return id, 0
		}
	}
}

func (service *Service) render(node *Node) ([]byte, error) {
	memory := node.Memory.M()
	if memory == 0 {
		return nil, util.NewError(ErrInvalidParams, "memory %s is less than 1 MiB", node.Memory)
	}
	if memory > uint64(math.MaxInt) {
		return nil, util.NewError(ErrInvalidParams, "memory %d MiB is too large", memory)
	}
	content, err := service.tmpl.Render(vagrantfile.Values{
		Id:        node.Hostname,
		IpAddress: node.IpAddress,
		Memory:    int(memory),
	})
	if err != nil {
		return nil, util.NewError(err, "cannot render vagrantfile")
	}
	return content, nil
}

// VagrantfileRender renders the template for values not bound to a node.
func (service *Service) VagrantfileRender(values vagrantfile.Values) ([]byte, error) {
	content, err := service.tmpl.Render(values)
	if err != nil {
		return nil, util.NewError(err, "cannot render vagrantfile")
	}
	return content, nil
}

func (service *Service) NodeVagrantfile(id string) ([]byte, error) {
	node, err := service.nodes.Get(id)
	if err != nil {
		return nil, err
	}
	return service.render(node)
}

func (service *Service) NodeDelete(ctx context.Context, id string) error {
	node, err := service.nodes.Get(id)
	if err != nil {
		return err
	}
	if err := service.prov.Destroy(ctx, node); err != nil {
		return util.NewError(err, "cannot destroy node %s", id)
	}
	if err := service.remove(id); err != nil {
		return util.NewError(err, "cannot delete node %s", id)
	}
	node.Status = NodeStatusDestroyed
	if err := service.epub.Publish(NewEventNodeDestroyed(node)); err != nil {
		return util.NewError(err, "cannot publish event node destroyed")
	}
	return nil
}

func (service *Service) NodeRefresh(ctx context.Context, id string) (*Node, error) {
	node, err := service.nodes.Get(id)
	if err != nil {
		return nil, err
	}
	status, err := service.prov.Status(ctx, node)
	if err != nil {
		return nil, util.NewError(err, "cannot fetch node status")
	}
	node.Status = status
	if err := service.update(node); err != nil {
		return nil, util.NewError(err, "cannot save node")
	}
	return node, nil
}

type NodeScaleParams struct {
	Prefix   string
	FlavorId string
	Count    int
}

// NodeScale creates or destroys numbered nodes of a prefix until exactly
// Count of them exist. The oldest nodes go first.
func (service *Service) NodeScale(ctx context.Context, params NodeScaleParams) ([]*Node, error) {
	params.Prefix = normalizePrefix(params.Prefix)
	if params.Prefix == "" || params.Count < 0 {
		return nil, util.NewError(ErrInvalidParams, "scale needs a prefix and a non negative count")
	}
	nodes, err := service.nodes.Numbered(params.Prefix)
	if err != nil {
		return nil, util.NewError(err, "cannot list nodes")
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(service.parallelism)
	for diff := params.Count - len(nodes); diff > 0; diff-- {
		group.Go(func() error {
			_, err := service.NodeCreate(groupCtx, NodeCreateParams{Prefix: params.Prefix, FlavorId: params.FlavorId})
			return err
		})
	}
	if excess := len(nodes) - params.Count; excess > 0 {
		for _, node := range nodes[:excess] {
			id := node.Id
			group.Go(func() error {
				return service.NodeDelete(groupCtx, id)
			})
		}
	}
	if err := group.Wait(); err != nil {
		return nil, util.NewError(err, "scale of %s failed", params.Prefix)
	}
	return service.nodes.Numbered(params.Prefix)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrFlavorNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrNodeAlreadyExists) || errors.Is(err, ErrAddressInUse)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidParams) ||
		errors.Is(err, ErrAddressOutOfPool) ||
		errors.Is(err, vagrantfile.ErrInvalidValue)
}

func normalizePrefix(prefix string) string {
	return strings.TrimSuffix(strings.TrimSpace(prefix), "-")
}
