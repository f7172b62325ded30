package network

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool(t *testing.T) {
	tests := []struct {
		name    string
		cidr    string
		gateway string
		first   int
		err     bool
	}{
		{name: "ok", cidr: "172.17.8.0/24", first: 101},
		{name: "explicit gateway", cidr: "192.168.61.0/24", gateway: "192.168.61.254", first: 2},
		{name: "bad cidr", cidr: "172.17.8.0/33", err: true},
		{name: "ipv6", cidr: "fd00::/64", err: true},
		{name: "gateway outside", cidr: "10.0.0.0/24", gateway: "10.0.1.1", err: true},
		{name: "offset too large", cidr: "10.0.0.0/30", first: 4, err: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := NewPool(tt.cidr, tt.gateway, tt.first)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cidr, pool.String())
		})
	}
}

func TestAllocate(t *testing.T) {
	pool, err := NewPool("172.17.8.0/24", "", 101)
	require.NoError(t, err)
	assert.Equal(t, "172.17.8.1", pool.Gateway())

	ip, err := pool.Allocate(nil)
	require.NoError(t, err)
	assert.Equal(t, "172.17.8.101", ip)

	ip, err = pool.Allocate([]string{"172.17.8.101", "172.17.8.102", "172.17.8.104"})
	require.NoError(t, err)
	assert.Equal(t, "172.17.8.103", ip)
}

func TestAllocateSkipsReserved(t *testing.T) {
	pool, err := NewPool("10.0.0.0/29", "10.0.0.1", 1)
	require.NoError(t, err)
	assert.Equal(t, 5, pool.Size())

	used := []string{}
	for i := 0; i < 5; i++ {
		ip, err := pool.Allocate(used)
		require.NoError(t, err)
		used = append(used, ip)
	}
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"}, used)

	_, err = pool.Allocate(used)
	assert.True(t, errors.Is(err, ErrPoolExhausted))
}

func TestContains(t *testing.T) {
	pool, err := NewPool("172.17.8.0/24", "", 101)
	require.NoError(t, err)
	assert.True(t, pool.Contains("172.17.8.103"))
	assert.False(t, pool.Contains("172.17.8.1"))
	assert.False(t, pool.Contains("172.17.8.50"))
	assert.False(t, pool.Contains("172.17.8.255"))
	assert.False(t, pool.Contains("172.17.9.103"))
	assert.False(t, pool.Contains("nonsense"))
	assert.Equal(t, 154, pool.Size())
}

func TestAllocateLargePool(t *testing.T) {
	pool, err := NewPool("10.20.0.0/16", "", 1)
	require.NoError(t, err)
	assert.Equal(t, 65533, pool.Size())

	used := []string{}
	for i := 2; i < 255*200; i++ {
		used = append(used, fmt.Sprintf("10.20.%d.%d", i/256, i%256))
	}
	ip, err := pool.Allocate(used)
	require.NoError(t, err)
	assert.Equal(t, "10.20.199.56", ip)
}
