package fabric

import (
	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// ResolveMedium classifies the physical medium of a link from the interface
// types at both ends. It is a pure, total function: both ends copper gives
// copper, both ends fiber gives multi-mode (the default for intra-facility
// runs), mixed media needs a direct-attach/active-optical assembly.
//
// Cable length and location are never inspected; all modeled links are
// assumed to be short intra-facility runs unless the caller overrides the
// result.
func ResolveMedium(interfaceTypeA, interfaceTypeB string) string {
	copperA := isCopper(interfaceTypeA)
	copperB := isCopper(interfaceTypeB)

	switch {
	case copperA && copperB:
		return constants.MediumCopper
	case !copperA && !copperB:
		return constants.MediumMultiMode
	default:
		return constants.MediumDirectAttach
	}
}

// MediumColor returns the cable color for a medium, empty if unmapped
func MediumColor(medium string) string {
	return constants.MediumColorMap[medium]
}

func isCopper(interfaceType string) bool {
	return utils.Contains(constants.CopperInterfaceTypes, interfaceType)
}
