package fabric

import (
	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
)

// ValidateDesign decides whether a pod design may be generated into a site
// layout. It is pure and side-effect free and must pass before any
// allocation or device creation begins.
//
// Capacity checks always run. The whitelist is an additional restriction on
// top of them, never a substitute: a whitelisted layout that is too small
// still fails.
func ValidateDesign(design *models.PodDesign, layout *models.SiteLayout) error {
	if design.MaxTorsPerRow > layout.ComputeRacksPerRow {
		return &CapacityError{
			Resource:  "ToR rack slots per row",
			Required:  design.MaxTorsPerRow,
			Available: layout.ComputeRacksPerRow,
		}
	}

	leafSlots := layout.NetworkRacksPerRow * constants.LeafsPerNetworkRack
	if design.MaxLeafsPerRow > leafSlots {
		return &CapacityError{
			Resource:  "leaf slots per row",
			Required:  design.MaxLeafsPerRow,
			Available: leafSlots,
		}
	}

	if !design.AllowsLayout(layout.Name) {
		return &WhitelistError{
			Layout:  layout.Name,
			Allowed: design.CompatibleLayouts,
		}
	}

	return nil
}
