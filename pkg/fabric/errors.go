package fabric

import (
	"fmt"
	"strings"

	"github.com/braunma/netbox-fabric-generator/pkg/models"
)

// CapacityError reports a design that requires more rack slots than the
// layout provides. Raised before any mutation.
type CapacityError struct {
	Resource  string
	Required  int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("design exceeds layout capacity: %d %s required, %d available",
		e.Required, e.Resource, e.Available)
}

// WhitelistError reports a layout that is not in the design's allowed set.
// Raised before any mutation.
type WhitelistError struct {
	Layout  string
	Allowed []string
}

func (e *WhitelistError) Error() string {
	return fmt.Sprintf("layout %q is not compatible with this design (allowed: %s)",
		e.Layout, strings.Join(e.Allowed, ", "))
}

// DuplicateNameError reports two distinct coordinates resolving to the same
// device name. This indicates a naming-strategy or hierarchy bug and is
// never silently resolved.
type DuplicateNameError struct {
	Name   string
	First  models.Coordinates
	Second models.Coordinates
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate device name %q: first at [%s], again at [%s]",
		e.Name, e.First, e.Second)
}

// InventoryError wraps a transient failure talking to the backing store with
// enough context (node, operation) for the caller to retry externally.
type InventoryError struct {
	Node string
	Op   string
	Err  error
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("inventory error on %s during %s: %v", e.Node, e.Op, e.Err)
}

func (e *InventoryError) Unwrap() error {
	return e.Err
}
