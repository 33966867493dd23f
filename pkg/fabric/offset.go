package fabric

import (
	"fmt"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
)

// Offset carries the 0-based port bases used when wiring a rack's switches
// to the layer above. Tor is the base for ToR uplinks, Leaf the base for
// leaf uplinks. Offsets exist solely so that every switch-to-switch cable
// lands on a unique upstream port range.
type Offset struct {
	Tor  int
	Leaf int
}

// OffsetRequest describes the rack whose offsets are being computed.
// RowIndex and RackIndex are 1-based. PrecedingTorRacks is the number of
// racks earlier in the same row that carry ToRs; on partial re-runs it is
// recomputed from the live inventory rather than assumed.
type OffsetRequest struct {
	Deployment        string
	RowIndex          int
	RackIndex         int
	TorsPerRack       int
	PrecedingTorRacks int
}

// offsetFunc computes the offsets for one deployment type
type offsetFunc func(req OffsetRequest, design *models.PodDesign) Offset

// offsetStrategies maps each deployment type to its placement formula. The
// three formulas differ because the three deployment types have structurally
// different upstream fan-in: ToR→leaf intra-rack only, ToR→spine pod-wide,
// and ToR→row-leaf respectively.
var offsetStrategies = map[string]offsetFunc{
	constants.DeploymentMiddleRack: middleRackOffset,
	constants.DeploymentTor:        torOffset,
	constants.DeploymentMixed:      mixedOffset,
}

// ComputeOffset derives the cabling port offsets for a rack's switches.
func ComputeOffset(req OffsetRequest, design *models.PodDesign) (Offset, error) {
	if req.RowIndex < 1 || req.RackIndex < 1 {
		return Offset{}, fmt.Errorf("row and rack indices are 1-based, got row=%d rack=%d",
			req.RowIndex, req.RackIndex)
	}

	strategy, ok := offsetStrategies[req.Deployment]
	if !ok {
		return Offset{}, fmt.Errorf("unknown deployment type %q", req.Deployment)
	}

	return strategy(req, design), nil
}

// middleRackOffset: ToRs only ever connect to leafs co-located in the same
// rack, so their offset is always zero. Leafs aggregate per row and share
// spine ports, so each row gets a disjoint base.
func middleRackOffset(req OffsetRequest, design *models.PodDesign) Offset {
	return Offset{
		Tor:  0,
		Leaf: rowLeafBase(req.RowIndex, design),
	}
}

// torOffset: flat two-tier fabric, every ToR uplinks pod-wide. The offset is
// the cumulative ToR count of all strictly preceding rows plus all strictly
// preceding racks of the current row. There is no leaf tier.
func torOffset(req OffsetRequest, design *models.PodDesign) Offset {
	return Offset{
		Tor: design.MaxTorsPerRow*(req.RowIndex-1) + req.TorsPerRack*(req.RackIndex-1),
	}
}

// mixedOffset: leafs behave as in middle_rack; ToRs attach only to their own
// row's middle rack, so the ToR offset is relative to the row, not the pod.
func mixedOffset(req OffsetRequest, design *models.PodDesign) Offset {
	return Offset{
		Tor:  req.PrecedingTorRacks * req.TorsPerRack,
		Leaf: rowLeafBase(req.RowIndex, design),
	}
}

// rowLeafBase reserves max_leafs_per_row ports per row. Using the design
// maximum rather than the row's actual leaf count keeps the per-row ranges
// disjoint even when rows are unevenly populated.
func rowLeafBase(rowIndex int, design *models.PodDesign) int {
	return (rowIndex - 1) * design.MaxLeafsPerRow
}
