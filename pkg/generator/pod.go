package generator

import (
	"fmt"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/fabric"
	"github.com/braunma/netbox-fabric-generator/pkg/ipam"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// podContext carries everything a pod's racks need: the resolved design and
// layout, site and rack-group IDs, the pod-scoped address pools and the
// spine devices created for the pod.
type podContext struct {
	dc      *models.DataCenterBinding
	binding *models.PodBinding
	design  *models.PodDesign
	layout  *models.SiteLayout

	siteID     int
	podGroupID int

	mgmtPool ipam.PoolRef
	techPool ipam.PoolRef

	spines []deviceRef
}

// coords returns the pod-level coordinates
func (p *podContext) coords() models.Coordinates {
	return models.Coordinates{Fabric: p.dc.Fabric, DC: p.dc.DC, Pod: p.binding.Pod}
}

// uplinkType returns the interface type for switch-to-switch fabric links
func (p *podContext) uplinkType() string {
	if p.design.UplinkType != "" {
		return p.design.UplinkType
	}
	return "100gbase-x-qsfp28"
}

// downlinkType returns the interface type for ToR-facing links
func (p *podContext) downlinkType() string {
	if p.design.DownlinkType != "" {
		return p.design.DownlinkType
	}
	return "10gbase-x-sfp+"
}

// GeneratePod generates the full topology for one named pod: validation,
// pod pools, spines, then every rack of every row.
func (g *Generator) GeneratePod(podName string) error {
	dc, binding, err := g.catalog.FindPodBinding(podName)
	if err != nil {
		return err
	}

	pctx, err := g.preparePod(dc, binding)
	if err != nil {
		return err
	}

	for row := 1; row <= pctx.design.Rows; row++ {
		for rack := 1; rack <= pctx.design.RacksPerRow; rack++ {
			if err := g.generateRack(pctx, row, rack); err != nil {
				return err
			}
		}
	}

	g.logger.Success("Pod %s generated", podName)
	return nil
}

// GenerateRack regenerates a single rack of a pod, discovering sibling
// state from the inventory so offsets stay correct on partial re-runs.
func (g *Generator) GenerateRack(podName string, row, rack int) error {
	dc, binding, err := g.catalog.FindPodBinding(podName)
	if err != nil {
		return err
	}

	pctx, err := g.preparePod(dc, binding)
	if err != nil {
		return err
	}

	if row < 1 || row > pctx.design.Rows || rack < 1 || rack > pctx.design.RacksPerRow {
		return fmt.Errorf("rack position row=%d rack=%d outside design bounds (%d rows × %d racks)",
			row, rack, pctx.design.Rows, pctx.design.RacksPerRow)
	}

	return g.generateRack(pctx, row, rack)
}

// preparePod validates the design against the layout and materializes the
// pod's shared resources: rack group, address pools and spines. Validation
// failures abort before anything is written.
func (g *Generator) preparePod(dc *models.DataCenterBinding, binding *models.PodBinding) (*podContext, error) {
	design, err := g.catalog.GetDesign(binding.Design)
	if err != nil {
		return nil, err
	}
	layout, err := g.catalog.GetLayout(binding.Layout)
	if err != nil {
		return nil, err
	}

	if err := fabric.ValidateDesign(design, layout); err != nil {
		return nil, fmt.Errorf("pod %s: %w", binding.Name, err)
	}

	g.logger.Info("Generating pod %s (design %s, layout %s)...", binding.Name, design.Name, layout.Name)

	pctx := &podContext{
		dc:      dc,
		binding: binding,
		design:  design,
		layout:  layout,
	}

	pctx.siteID, err = g.ensureSite(dc)
	if err != nil {
		return nil, err
	}

	pctx.podGroupID, err = g.ensureRackGroup(pctx.siteID, binding.Name, 0)
	if err != nil {
		return nil, err
	}

	if err := g.preparePodPools(pctx); err != nil {
		return nil, err
	}

	if err := g.ensureSpines(pctx); err != nil {
		return nil, err
	}

	return pctx, nil
}

// preparePodPools carves the pod's management and technical prefix pools
// from the data center parent pools
func (g *Generator) preparePodPools(pctx *podContext) error {
	dcMgmt, err := g.ensureParentPool(pctx.dc.ManagementPool)
	if err != nil {
		return err
	}
	dcTech, err := g.ensureParentPool(pctx.dc.TechnicalPool)
	if err != nil {
		return err
	}

	mgmt, err := g.alloc.AllocatePrefix(dcMgmt, pctx.binding.Name+":management",
		constants.ManagementPrefixLength, constants.PoolRoleManagement)
	if err != nil {
		return err
	}
	tech, err := g.alloc.AllocatePrefix(dcTech, pctx.binding.Name+":technical",
		constants.TechnicalPrefixLength, constants.PoolRoleLoopback)
	if err != nil {
		return err
	}

	pctx.mgmtPool = mgmt.Pool()
	pctx.techPool = tech.Pool()
	return nil
}

// ensureRackGroup creates or finds a rack group; parentID nests rows under
// their pod
func (g *Generator) ensureRackGroup(siteID int, name string, parentID int) (int, error) {
	slug := utils.Slugify(name)
	payload := map[string]interface{}{
		"name": name,
		"slug": slug,
		"site": siteID,
	}
	if parentID > 0 {
		payload["parent"] = parentID
	}

	result, err := g.inv.GetOrCreate("dcim", "rack-groups",
		map[string]interface{}{"slug": slug, "site_id": siteID}, payload)
	if err != nil {
		return 0, &fabric.InventoryError{Node: name, Op: "ensure rack group", Err: err}
	}
	return utils.GetIDFromObject(result.Object), nil
}

// ensureSpines creates the pod's spine switches with management and
// loopback addressing, plus their uplinks to super-spines when the data
// center carries a super-spine tier.
func (g *Generator) ensureSpines(pctx *podContext) error {
	coords := pctx.coords()
	uplink := pctx.uplinkType()

	superspines, err := g.ensureSuperSpines(pctx.dc)
	if err != nil {
		return err
	}

	superBase, err := g.superSpinePortBase(pctx.dc, pctx.binding)
	if err != nil {
		return err
	}

	for s := 1; s <= pctx.design.SpineCount; s++ {
		name, err := fabric.ResolveName(pctx.design.NamingStrategy, coords, constants.RoleSpine, s)
		if err != nil {
			return err
		}

		deviceID, err := g.ensureDevice(name, coords, constants.RoleSpine, pctx.design.DeviceTypeSlug, pctx.siteID, 0)
		if err != nil {
			return err
		}

		if err := g.attachManagement(deviceID, name, pctx.mgmtPool, pctx.techPool); err != nil {
			return err
		}

		spine := deviceRef{Name: name, ID: deviceID}
		pctx.spines = append(pctx.spines, spine)

		// Spine downlink ports are claimed by rack generation through
		// offsets; uplinks to super-spines start past the reserved range.
		uplinkBase := g.spineUplinkBase(pctx.design)
		for ss, super := range superspines {
			spineEnd, err := g.portOn(spine, uplinkBase+ss+1, uplink)
			if err != nil {
				return err
			}

			superEnd, err := g.portOn(super, superBase+s, uplink)
			if err != nil {
				return err
			}

			if err := g.ensureCable(spineEnd, superEnd); err != nil {
				return err
			}
		}
	}

	return nil
}

// spineUplinkBase reserves the spine's downlink port range. Rack-facing
// ports never exceed the rows' cumulative offsets, so super-spine uplinks
// start after them.
func (g *Generator) spineUplinkBase(design *models.PodDesign) int {
	if design.DeploymentType == constants.DeploymentTor {
		return design.Rows * design.MaxTorsPerRow
	}
	return design.Rows * design.MaxLeafsPerRow
}

// superSpinePortBase sums the spine counts of the data center's lower
// numbered pods. Each pod's spines then land on their own super-spine port
// block even when the pods use designs with different spine counts.
func (g *Generator) superSpinePortBase(dc *models.DataCenterBinding, binding *models.PodBinding) (int, error) {
	base := 0
	for i := range dc.Pods {
		other := &dc.Pods[i]
		if other.Pod >= binding.Pod {
			continue
		}

		design, err := g.catalog.GetDesign(other.Design)
		if err != nil {
			return 0, err
		}
		base += design.SpineCount
	}
	return base, nil
}

