package ipam

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/client"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// PoolExhaustedError reports that no addressing capacity remains in a pool
// at the requested length. It is fatal for the current generation run; the
// allocator never falls back to an unrelated pool.
type PoolExhaustedError struct {
	Pool   string
	Length int
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("pool %s exhausted: no /%d available", e.Pool, e.Length)
}

// PoolRef identifies a prefix pool in the inventory
type PoolRef struct {
	ID     int
	Prefix string
}

func (p PoolRef) String() string {
	if p.Prefix != "" {
		return p.Prefix
	}
	return fmt.Sprintf("#%d", p.ID)
}

// Allocation is a carved prefix or host address
type Allocation struct {
	ID         int
	CIDR       string
	Identifier string
	Role       string
}

// Pool returns the allocation itself as a pool reference, so a prefix
// allocation can be carved from in turn
func (a Allocation) Pool() PoolRef {
	return PoolRef{ID: a.ID, Prefix: a.CIDR}
}

// Inventory is the slice of the inventory client the allocator needs
type Inventory interface {
	Filter(app, endpoint string, filters map[string]interface{}) ([]client.Object, error)
	AllocatePrefix(parentID, length int, payload map[string]interface{}) (client.Object, error)
	AllocateAddress(prefixID int, payload map[string]interface{}) (client.Object, error)
}

// Allocator carves prefix and address pools from parent pools, idempotently.
// Each request is keyed by (pool, identifier): a repeat request returns the
// prior allocation instead of carving again. The cache is scoped to one
// generator run and must not be shared across concurrent invocations.
type Allocator struct {
	inv    Inventory
	logger *utils.Logger
	cache  map[string]Allocation
}

// NewAllocator creates an allocator bound to one generation run
func NewAllocator(inv Inventory, logger *utils.Logger) *Allocator {
	return &Allocator{
		inv:    inv,
		logger: logger,
		cache:  make(map[string]Allocation),
	}
}

// AllocatePrefix carves a child prefix of the given length from the parent
// pool, or returns the allocation already recorded for this identifier.
// Role is metadata only and never affects carving.
func (a *Allocator) AllocatePrefix(parent PoolRef, identifier string, length int, role string) (Allocation, error) {
	key := fmt.Sprintf("prefix:%d/%s", parent.ID, identifier)
	if alloc, ok := a.cache[key]; ok {
		return alloc, nil
	}

	// A prior run may already hold this allocation
	existing, err := a.inv.Filter("ipam", "prefixes", map[string]interface{}{
		"within":      parent.Prefix,
		"description": identifier,
	})
	if err != nil {
		return Allocation{}, fmt.Errorf("failed to look up prefix allocation %q: %w", identifier, err)
	}

	if len(existing) > 0 {
		alloc, err := prefixAllocation(existing[0], identifier, role)
		if err != nil {
			return Allocation{}, err
		}
		a.logger.Debug("  = Prefix %s already allocated for %s", alloc.CIDR, identifier)
		a.cache[key] = alloc
		return alloc, nil
	}

	obj, err := a.inv.AllocatePrefix(parent.ID, length, map[string]interface{}{
		"description": identifier,
	})
	if err != nil {
		if errors.Is(err, client.ErrPoolExhausted) {
			return Allocation{}, &PoolExhaustedError{Pool: parent.String(), Length: length}
		}
		return Allocation{}, fmt.Errorf("failed to allocate /%d from %s: %w", length, parent, err)
	}

	alloc, err := prefixAllocation(obj, identifier, role)
	if err != nil {
		return Allocation{}, err
	}

	a.logger.Success("  ✓ Allocated prefix %s (%s) for %s", alloc.CIDR, role, identifier)
	a.cache[key] = alloc
	return alloc, nil
}

// AllocateAddress carves a host address from the source pool, or returns
// the address already recorded for this identifier.
func (a *Allocator) AllocateAddress(pool PoolRef, identifier string, role string) (Allocation, error) {
	key := fmt.Sprintf("address:%d/%s", pool.ID, identifier)
	if alloc, ok := a.cache[key]; ok {
		return alloc, nil
	}

	existing, err := a.inv.Filter("ipam", "ip-addresses", map[string]interface{}{
		"parent":      pool.Prefix,
		"description": identifier,
	})
	if err != nil {
		return Allocation{}, fmt.Errorf("failed to look up address allocation %q: %w", identifier, err)
	}

	if len(existing) > 0 {
		alloc, err := addressAllocation(existing[0], identifier, role)
		if err != nil {
			return Allocation{}, err
		}
		a.logger.Debug("  = Address %s already allocated for %s", alloc.CIDR, identifier)
		a.cache[key] = alloc
		return alloc, nil
	}

	obj, err := a.inv.AllocateAddress(pool.ID, map[string]interface{}{
		"description": identifier,
	})
	if err != nil {
		if errors.Is(err, client.ErrPoolExhausted) {
			return Allocation{}, &PoolExhaustedError{Pool: pool.String(), Length: constants.HostPrefixLength}
		}
		return Allocation{}, fmt.Errorf("failed to allocate address from %s: %w", pool, err)
	}

	alloc, err := addressAllocation(obj, identifier, role)
	if err != nil {
		return Allocation{}, err
	}

	a.logger.Success("  ✓ Allocated address %s (%s) for %s", alloc.CIDR, role, identifier)
	a.cache[key] = alloc
	return alloc, nil
}

// prefixAllocation validates and converts an inventory prefix object
func prefixAllocation(obj client.Object, identifier, role string) (Allocation, error) {
	cidr := utils.GetStringField(obj, "prefix")
	if _, err := netip.ParsePrefix(cidr); err != nil {
		return Allocation{}, fmt.Errorf("inventory returned invalid prefix %q for %s: %w", cidr, identifier, err)
	}

	return Allocation{
		ID:         utils.GetIDFromObject(obj),
		CIDR:       cidr,
		Identifier: identifier,
		Role:       role,
	}, nil
}

// addressAllocation validates and converts an inventory address object,
// normalizing to a host route
func addressAllocation(obj client.Object, identifier, role string) (Allocation, error) {
	raw := utils.GetStringField(obj, "address")
	parsed, err := netip.ParsePrefix(raw)
	if err != nil {
		return Allocation{}, fmt.Errorf("inventory returned invalid address %q for %s: %w", raw, identifier, err)
	}

	return Allocation{
		ID:         utils.GetIDFromObject(obj),
		CIDR:       netip.PrefixFrom(parsed.Addr(), parsed.Addr().BitLen()).String(),
		Identifier: identifier,
		Role:       role,
	}, nil
}
