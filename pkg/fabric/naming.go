package fabric

import (
	"fmt"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
)

// ResolveName derives a device's canonical name from its position in the
// hierarchy and the selected naming strategy. The function is pure: the same
// inputs always yield the same name, which is the uniqueness key enforced at
// the device level.
//
// Super-spines are DC-scoped, so they omit pod/row/rack regardless of
// strategy.
func ResolveName(strategy string, coords models.Coordinates, role string, index int) (string, error) {
	if role == constants.RoleSuperSpine {
		if strategy == constants.NamingFlat {
			return fmt.Sprintf("%s-%s-%02d", coords.Fabric, role, index), nil
		}
		return fmt.Sprintf("%s-fab%d-%s-%02d", coords.Fabric, coords.DC, role, index), nil
	}

	// spines live at pod scope; row and rack carry no information for them
	if role == constants.RoleSpine && strategy == constants.NamingStandard {
		strategy = constants.NamingHierarchical
	}

	switch strategy {
	case constants.NamingStandard:
		return fmt.Sprintf("%s-fab%d-pod%d-row%d-rack%d-%s-%02d",
			coords.Fabric, coords.DC, coords.Pod, coords.Row, coords.Rack, role, index), nil
	case constants.NamingHierarchical:
		return fmt.Sprintf("%s-fab%d-pod%d-%s-%02d",
			coords.Fabric, coords.DC, coords.Pod, role, index), nil
	case constants.NamingFlat:
		return fmt.Sprintf("%s-%s-%02d", coords.Fabric, role, index), nil
	default:
		return "", fmt.Errorf("unknown naming strategy %q", strategy)
	}
}
