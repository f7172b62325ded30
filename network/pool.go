package network

import (
	"errors"
	"fmt"
	"net"
	"subuk/vagrantd/util"

	"github.com/apparentlymart/go-cidr/cidr"
)

var ErrPoolExhausted = errors.New("address pool exhausted")

// Pool hands out host addresses of a private network. The network, gateway
// and broadcast addresses are never allocated, neither is anything below
// the first offset.
type Pool struct {
	network   *net.IPNet
	gateway   net.IP
	first     int
	firstIp   net.IP
	broadcast net.IP
}

func NewPool(cidrRange string, gateway string, first int) (*Pool, error) {
	_, network, err := net.ParseCIDR(cidrRange)
	if err != nil {
		return nil, util.NewError(err, "invalid network %q", cidrRange)
	}
	if network.IP.To4() == nil {
		return nil, fmt.Errorf("network %s is not ipv4", cidrRange)
	}
	pool := &Pool{network: network, first: first}
	if gateway != "" {
		pool.gateway = net.ParseIP(gateway)
		if pool.gateway == nil || !network.Contains(pool.gateway) {
			return nil, fmt.Errorf("gateway %q is not inside %s", gateway, cidrRange)
		}
	} else {
		pool.gateway, _ = cidr.Host(network, 1)
	}
	if pool.first < 1 {
		pool.first = 1
	}
	if uint64(pool.first) >= cidr.AddressCount(network) {
		return nil, fmt.Errorf("first offset %d is outside of %s", first, cidrRange)
	}
	pool.firstIp, err = cidr.Host(network, pool.first)
	if err != nil {
		return nil, util.NewError(err, "cannot compute first address")
	}
	pool.firstIp = pool.firstIp.To4()
	_, broadcast := cidr.AddressRange(network)
	pool.broadcast = broadcast.To4()
	return pool, nil
}

func (pool *Pool) String() string {
	return pool.network.String()
}

func (pool *Pool) Gateway() string {
	return pool.gateway.String()
}

func (pool *Pool) Contains(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil || !pool.network.Contains(parsed) {
		return false
	}
	return pool.usable(parsed)
}

func (pool *Pool) usable(ip net.IP) bool {
	if ip.Equal(pool.network.IP) || ip.Equal(pool.broadcast) || ip.Equal(pool.gateway) {
		return false
	}
	return compare(ip.To4(), pool.firstIp) >= 0
}

// Size is the number of addresses Allocate can return.
func (pool *Pool) Size() int {
	count := 0
	for ip := pool.firstIp; ; ip = cidr.Inc(ip) {
		if pool.usable(ip) {
			count++
		}
		if ip.Equal(pool.broadcast) {
			return count
		}
	}
}

// Allocate returns the lowest usable address not listed in used.
func (pool *Pool) Allocate(used []string) (string, error) {
	taken := make(map[string]struct{}, len(used))
	for _, ip := range used {
		taken[ip] = struct{}{}
	}
	for ip := pool.firstIp; ; ip = cidr.Inc(ip) {
		candidate := ip.String()
		if _, exists := taken[candidate]; !exists && pool.usable(ip) {
			return candidate, nil
		}
		if ip.Equal(pool.broadcast) {
			return "", util.NewError(ErrPoolExhausted, "%s", pool.network)
		}
	}
}

func compare(a, b net.IP) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
