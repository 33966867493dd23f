package ipam

import (
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/client"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// fakePool simulates one inventory prefix pool with sequential carving
type fakePool struct {
	supernet   netip.Prefix
	nextID     int
	carved     int
	capacity   int
	byDesc     map[string]client.Object
	addrByDesc map[string]client.Object
}

func newFakePool(supernet string, capacity int) *fakePool {
	return &fakePool{
		supernet:   netip.MustParsePrefix(supernet),
		nextID:     100,
		capacity:   capacity,
		byDesc:     make(map[string]client.Object),
		addrByDesc: make(map[string]client.Object),
	}
}

func (f *fakePool) Filter(app, endpoint string, filters map[string]interface{}) ([]client.Object, error) {
	desc, _ := filters["description"].(string)
	var store map[string]client.Object
	switch endpoint {
	case "prefixes":
		store = f.byDesc
	case "ip-addresses":
		store = f.addrByDesc
	default:
		return nil, fmt.Errorf("unexpected endpoint %s", endpoint)
	}
	if obj, ok := store[desc]; ok {
		return []client.Object{obj}, nil
	}
	return nil, nil
}

func (f *fakePool) AllocatePrefix(parentID, length int, payload map[string]interface{}) (client.Object, error) {
	if f.carved >= f.capacity {
		return nil, fmt.Errorf("%w: insufficient space", client.ErrPoolExhausted)
	}
	f.carved++
	f.nextID++

	// Carve sequential /length children from the supernet
	base := f.supernet.Addr().As4()
	base[2] = byte(f.carved)
	cidr := netip.PrefixFrom(netip.AddrFrom4(base), length).String()

	obj := client.Object{
		"id":          f.nextID,
		"prefix":      cidr,
		"description": payload["description"],
	}
	if desc, ok := payload["description"].(string); ok {
		f.byDesc[desc] = obj
	}
	return obj, nil
}

func (f *fakePool) AllocateAddress(prefixID int, payload map[string]interface{}) (client.Object, error) {
	if f.carved >= f.capacity {
		return nil, fmt.Errorf("%w: no available ip in prefix", client.ErrPoolExhausted)
	}
	f.carved++
	f.nextID++

	base := f.supernet.Addr().As4()
	base[3] = byte(f.carved)
	obj := client.Object{
		"id":          f.nextID,
		"address":     fmt.Sprintf("%s/24", netip.AddrFrom4(base)),
		"description": payload["description"],
	}
	if desc, ok := payload["description"].(string); ok {
		f.addrByDesc[desc] = obj
	}
	return obj, nil
}

func TestAllocatePrefix(t *testing.T) {
	pool := newFakePool("10.64.0.0/16", 4)
	a := NewAllocator(pool, utils.NewLogger(true))
	parent := PoolRef{ID: 1, Prefix: "10.64.0.0/16"}

	alloc, err := a.AllocatePrefix(parent, "fra1-pod1:management", constants.ManagementPrefixLength, constants.PoolRoleManagement)
	if err != nil {
		t.Fatalf("AllocatePrefix() error = %v", err)
	}
	if alloc.CIDR == "" || alloc.ID == 0 {
		t.Fatalf("allocation incomplete: %+v", alloc)
	}
	if alloc.Role != constants.PoolRoleManagement {
		t.Errorf("alloc.Role = %q, expected management", alloc.Role)
	}
}

// Requesting the same (pool, identifier) twice must return the same prefix
// and carve from the pool only once.
func TestAllocatePrefixIdempotent(t *testing.T) {
	pool := newFakePool("10.64.0.0/16", 4)
	a := NewAllocator(pool, utils.NewLogger(true))
	parent := PoolRef{ID: 1, Prefix: "10.64.0.0/16"}

	first, err := a.AllocatePrefix(parent, "fra1-pod1:management", 24, constants.PoolRoleManagement)
	if err != nil {
		t.Fatalf("first AllocatePrefix() error = %v", err)
	}
	second, err := a.AllocatePrefix(parent, "fra1-pod1:management", 24, constants.PoolRoleManagement)
	if err != nil {
		t.Fatalf("second AllocatePrefix() error = %v", err)
	}

	if first.CIDR != second.CIDR || first.ID != second.ID {
		t.Errorf("repeat allocation differs: %+v vs %+v", first, second)
	}
	if pool.carved != 1 {
		t.Errorf("pool carved %d times, expected 1", pool.carved)
	}

	// Distinct identifiers still carve
	third, err := a.AllocatePrefix(parent, "fra1-pod2:management", 24, constants.PoolRoleManagement)
	if err != nil {
		t.Fatalf("third AllocatePrefix() error = %v", err)
	}
	if third.CIDR == first.CIDR {
		t.Error("distinct identifiers must not share a prefix")
	}
	if pool.carved != 2 {
		t.Errorf("pool carved %d times, expected 2", pool.carved)
	}
}

// A fresh allocator (new run) must find the prior run's allocation in the
// inventory instead of carving a duplicate.
func TestAllocatePrefixConvergesAcrossRuns(t *testing.T) {
	pool := newFakePool("10.64.0.0/16", 4)
	parent := PoolRef{ID: 1, Prefix: "10.64.0.0/16"}

	run1 := NewAllocator(pool, utils.NewLogger(true))
	first, err := run1.AllocatePrefix(parent, "fra1-pod1:technical", 27, constants.PoolRoleLoopback)
	if err != nil {
		t.Fatalf("run1 AllocatePrefix() error = %v", err)
	}

	run2 := NewAllocator(pool, utils.NewLogger(true))
	second, err := run2.AllocatePrefix(parent, "fra1-pod1:technical", 27, constants.PoolRoleLoopback)
	if err != nil {
		t.Fatalf("run2 AllocatePrefix() error = %v", err)
	}

	if first.CIDR != second.CIDR {
		t.Errorf("re-run carved a new prefix: %s vs %s", first.CIDR, second.CIDR)
	}
	if pool.carved != 1 {
		t.Errorf("pool carved %d times across runs, expected 1", pool.carved)
	}
}

func TestAllocateAddressIdempotent(t *testing.T) {
	pool := newFakePool("10.65.1.0/24", 8)
	a := NewAllocator(pool, utils.NewLogger(true))
	source := PoolRef{ID: 2, Prefix: "10.65.1.0/24"}

	first, err := a.AllocateAddress(source, "prod-fab1-pod1-row1-rack1-tor-01:loopback", constants.PoolRoleLoopback)
	if err != nil {
		t.Fatalf("AllocateAddress() error = %v", err)
	}
	second, err := a.AllocateAddress(source, "prod-fab1-pod1-row1-rack1-tor-01:loopback", constants.PoolRoleLoopback)
	if err != nil {
		t.Fatalf("repeat AllocateAddress() error = %v", err)
	}

	if first.CIDR != second.CIDR {
		t.Errorf("repeat allocation differs: %s vs %s", first.CIDR, second.CIDR)
	}
	if pool.carved != 1 {
		t.Errorf("pool capacity decremented %d times, expected 1", pool.carved)
	}
}

func TestAllocateAddressNormalizesToHostRoute(t *testing.T) {
	pool := newFakePool("10.65.1.0/24", 8)
	a := NewAllocator(pool, utils.NewLogger(true))
	source := PoolRef{ID: 2, Prefix: "10.65.1.0/24"}

	alloc, err := a.AllocateAddress(source, "dev:loopback", constants.PoolRoleLoopback)
	if err != nil {
		t.Fatalf("AllocateAddress() error = %v", err)
	}

	parsed, err := netip.ParsePrefix(alloc.CIDR)
	if err != nil {
		t.Fatalf("allocation CIDR %q unparsable: %v", alloc.CIDR, err)
	}
	if parsed.Bits() != 32 {
		t.Errorf("address allocated as /%d, expected host /32", parsed.Bits())
	}
}

func TestAllocatePrefixExhaustion(t *testing.T) {
	pool := newFakePool("10.64.0.0/16", 1)
	a := NewAllocator(pool, utils.NewLogger(true))
	parent := PoolRef{ID: 1, Prefix: "10.64.0.0/16"}

	if _, err := a.AllocatePrefix(parent, "first", 24, constants.PoolRoleManagement); err != nil {
		t.Fatalf("AllocatePrefix() error = %v", err)
	}

	_, err := a.AllocatePrefix(parent, "second", 24, constants.PoolRoleManagement)
	var exhausted *PoolExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected PoolExhaustedError, got %v", err)
	}
	if exhausted.Pool != "10.64.0.0/16" || exhausted.Length != 24 {
		t.Errorf("PoolExhaustedError = %+v, expected pool 10.64.0.0/16 length 24", exhausted)
	}

	// Exhaustion must not poison prior idempotent results
	if _, err := a.AllocatePrefix(parent, "first", 24, constants.PoolRoleManagement); err != nil {
		t.Errorf("prior allocation should still resolve, got %v", err)
	}
}
