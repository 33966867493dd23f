package generator

import (
	"fmt"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/fabric"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// devicePlan is one device scheduled for a rack before the bulk write
type devicePlan struct {
	name   string
	role   string
	coords models.Coordinates
}

// generateRack materializes one rack: its switches, their interfaces and
// addressing, intra-rack cabling and the uplinks into the layer above.
func (g *Generator) generateRack(pctx *podContext, row, rack int) error {
	coords := pctx.coords()
	coords.Row = row
	coords.Rack = rack

	g.logger.Debug("──── Rack row=%d rack=%d (%s) ────", row, rack, pctx.binding.Name)

	rowGroupID, err := g.ensureRackGroup(pctx.siteID,
		fmt.Sprintf("%s-row%d", pctx.binding.Name, row), pctx.podGroupID)
	if err != nil {
		return err
	}

	rackID, err := g.ensureRack(pctx, rowGroupID, row, rack)
	if err != nil {
		return err
	}

	torCount, leafCount := rackRoleCounts(pctx.design, rack)

	offset, err := g.rackOffset(pctx, row, rack, torCount)
	if err != nil {
		return err
	}

	// Plan all of the rack's devices, then write the missing ones in one
	// bulk call. Idempotence holds per item: existing names are skipped.
	var plans []devicePlan
	for l := 1; l <= leafCount; l++ {
		name, err := fabric.ResolveName(pctx.design.NamingStrategy, coords, constants.RoleLeaf,
			offset.Leaf+leafRowPosition(pctx.design, rack, l))
		if err != nil {
			return err
		}
		plans = append(plans, devicePlan{name: name, role: constants.RoleLeaf, coords: coords})
	}
	for t := 1; t <= torCount; t++ {
		name, err := fabric.ResolveName(pctx.design.NamingStrategy, coords, constants.RoleTor, offset.Tor+t)
		if err != nil {
			return err
		}
		plans = append(plans, devicePlan{name: name, role: constants.RoleTor, coords: coords})
	}

	devices, err := g.ensureRackDevices(pctx, rackID, plans)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		dev := devices[plan.name]
		if err := g.attachManagement(dev.ID, dev.Name, pctx.mgmtPool, pctx.techPool); err != nil {
			return err
		}
	}

	leafs := make([]deviceRef, 0, leafCount)
	tors := make([]deviceRef, 0, torCount)
	for _, plan := range plans {
		switch plan.role {
		case constants.RoleLeaf:
			leafs = append(leafs, devices[plan.name])
		case constants.RoleTor:
			tors = append(tors, devices[plan.name])
		}
	}

	return g.cableRack(pctx, row, rack, offset, tors, leafs)
}

// rackRoleCounts decides how many ToRs and leafs a rack houses under each
// deployment type. In mixed pods rack 1 is the row's middle rack and
// carries the leafs; every other rack carries ToRs.
func rackRoleCounts(design *models.PodDesign, rack int) (tors, leafs int) {
	switch design.DeploymentType {
	case constants.DeploymentTor:
		return design.TorsPerRack, 0
	case constants.DeploymentMiddleRack:
		return design.TorsPerRack, leafsPerRack(design)
	case constants.DeploymentMixed:
		if rack == 1 {
			return 0, leafsPerRack(design)
		}
		return design.TorsPerRack, 0
	}
	return 0, 0
}

func leafsPerRack(design *models.PodDesign) int {
	if design.LeafsPerRack > 0 {
		return design.LeafsPerRack
	}
	return design.MaxLeafsPerRow
}

// leafRowPosition is a leaf's 1-based position within its row
func leafRowPosition(design *models.PodDesign, rack, leaf int) int {
	if design.DeploymentType == constants.DeploymentMixed {
		// all of the row's leafs live in the middle rack
		return leaf
	}
	return (rack-1)*leafsPerRack(design) + leaf
}

// rackOffset computes the rack's port offsets, discovering preceding
// sibling state from the inventory where the formula depends on it
func (g *Generator) rackOffset(pctx *podContext, row, rack, torCount int) (fabric.Offset, error) {
	preceding := 0
	if pctx.design.DeploymentType == constants.DeploymentMixed && torCount > 0 {
		var err error
		preceding, err = g.precedingTorRacks(pctx, row, rack)
		if err != nil {
			return fabric.Offset{}, err
		}
	}

	return fabric.ComputeOffset(fabric.OffsetRequest{
		Deployment:        pctx.design.DeploymentType,
		RowIndex:          row,
		RackIndex:         rack,
		TorsPerRack:       pctx.design.TorsPerRack,
		PrecedingTorRacks: preceding,
	}, pctx.design)
}

// precedingTorRacks counts the racks earlier in this row that already hold
// ToRs. Counting live inventory rather than assuming the design keeps
// offsets correct when a row is only partially generated.
func (g *Generator) precedingTorRacks(pctx *podContext, row, rack int) (int, error) {
	count := 0
	for k := 1; k < rack; k++ {
		rackName := rackName(pctx.binding.Name, row, k)
		racks, err := g.inv.Filter("dcim", "racks", map[string]interface{}{
			"name": rackName, "site_id": pctx.siteID,
		})
		if err != nil {
			return 0, &fabric.InventoryError{Node: rackName, Op: "list racks", Err: err}
		}
		if len(racks) == 0 {
			// rack not materialized yet; structurally it will hold ToRs
			if torsHere, _ := rackRoleCounts(pctx.design, k); torsHere > 0 {
				count++
			}
			continue
		}

		devices, err := g.inv.Filter("dcim", "devices", map[string]interface{}{
			"rack_id": utils.GetIDFromObject(racks[0]), "role": constants.RoleTor,
		})
		if err != nil {
			return 0, &fabric.InventoryError{Node: rackName, Op: "list rack devices", Err: err}
		}
		if len(devices) > 0 {
			count++
		}
	}
	return count, nil
}

func rackName(pod string, row, rack int) string {
	return fmt.Sprintf("%s-r%d-%d", pod, row, rack)
}

// ensureRack creates or finds the rack record
func (g *Generator) ensureRack(pctx *podContext, rowGroupID, row, rack int) (int, error) {
	name := rackName(pctx.binding.Name, row, rack)
	result, err := g.inv.GetOrCreate("dcim", "racks",
		map[string]interface{}{"name": name, "site_id": pctx.siteID},
		map[string]interface{}{
			"name":   name,
			"site":   pctx.siteID,
			"group":  rowGroupID,
			"status": constants.StatusActive,
		})
	if err != nil {
		return 0, &fabric.InventoryError{Node: name, Op: "ensure rack", Err: err}
	}
	return utils.GetIDFromObject(result.Object), nil
}

// ensureRackDevices writes a rack's planned devices, batching the missing
// ones into a single bulk create. Batching is purely a throughput
// optimization: each item keeps its get-or-create semantics because
// existing names are resolved first and skipped.
func (g *Generator) ensureRackDevices(pctx *podContext, rackID int, plans []devicePlan) (map[string]deviceRef, error) {
	devices := make(map[string]deviceRef, len(plans))
	if len(plans) == 0 {
		return devices, nil
	}

	for _, plan := range plans {
		if err := g.recordName(plan.name, plan.coords); err != nil {
			return nil, err
		}
	}

	existing, err := g.inv.Filter("dcim", "devices", map[string]interface{}{"rack_id": rackID})
	if err != nil {
		return nil, &fabric.InventoryError{Node: fmt.Sprintf("rack %d", rackID), Op: "list rack devices", Err: err}
	}
	known := make(map[string]int, len(existing))
	for _, obj := range existing {
		known[utils.GetStringField(obj, "name")] = utils.GetIDFromObject(obj)
	}

	typeID, err := g.ensureDeviceType(pctx.design.DeviceTypeSlug)
	if err != nil {
		return nil, err
	}

	var missing []map[string]interface{}
	for _, plan := range plans {
		if id, ok := known[plan.name]; ok {
			devices[plan.name] = deviceRef{Name: plan.name, ID: id}
			continue
		}

		roleID, err := g.ensureRole(plan.role)
		if err != nil {
			return nil, err
		}
		missing = append(missing, map[string]interface{}{
			"name":        plan.name,
			"site":        pctx.siteID,
			"rack":        rackID,
			"role":        roleID,
			"device_type": typeID,
			"status":      constants.StatusActive,
		})
	}

	if len(missing) > 0 {
		created, err := g.inv.CreateBulk("dcim", "devices", missing)
		if err != nil {
			return nil, &fabric.InventoryError{Node: fmt.Sprintf("rack %d", rackID), Op: "bulk create devices", Err: err}
		}
		for _, obj := range created {
			name := utils.GetStringField(obj, "name")
			if name == "" {
				continue // dry-run placeholder
			}
			devices[name] = deviceRef{Name: name, ID: utils.GetIDFromObject(obj)}
		}
	}

	// anything still unresolved (dry-run) keeps a zero ID
	for _, plan := range plans {
		if _, ok := devices[plan.name]; !ok {
			devices[plan.name] = deviceRef{Name: plan.name}
		}
	}

	return devices, nil
}

// cableRack wires the rack into the fabric according to the deployment
// type's fan-in structure. Offsets land every cable on a unique upstream
// port.
func (g *Generator) cableRack(pctx *podContext, row, rack int, offset fabric.Offset, tors, leafs []deviceRef) error {
	uplink := pctx.uplinkType()
	downlink := pctx.downlinkType()

	switch pctx.design.DeploymentType {
	case constants.DeploymentTor:
		// two-tier: every ToR uplinks straight to every spine
		for t, tor := range tors {
			for s, spine := range pctx.spines {
				torEnd, err := g.portOn(tor, s+1, uplink)
				if err != nil {
					return err
				}
				spineEnd, err := g.portOn(spine, offset.Tor+t+1, uplink)
				if err != nil {
					return err
				}
				if err := g.ensureCable(torEnd, spineEnd); err != nil {
					return err
				}
			}
		}

	case constants.DeploymentMiddleRack:
		// ToRs fan into their co-located leafs, leafs uplink to spines
		for t, tor := range tors {
			for l, leaf := range leafs {
				torEnd, err := g.portOn(tor, l+1, downlink)
				if err != nil {
					return err
				}
				leafEnd, err := g.portOn(leaf, offset.Tor+t+1, downlink)
				if err != nil {
					return err
				}
				if err := g.ensureCable(torEnd, leafEnd); err != nil {
					return err
				}
			}
		}
		if err := g.cableLeafUplinks(pctx, rack, offset, leafs); err != nil {
			return err
		}

	case constants.DeploymentMixed:
		if rack == 1 {
			return g.cableLeafUplinks(pctx, rack, offset, leafs)
		}
		// ToRs attach to their own row's middle-rack leafs only
		rowLeafs, err := g.findRowLeafs(pctx, row)
		if err != nil {
			return err
		}
		for t, tor := range tors {
			for l, leaf := range rowLeafs {
				torEnd, err := g.portOn(tor, l+1, downlink)
				if err != nil {
					return err
				}
				leafEnd, err := g.portOn(leaf, offset.Tor+t+1, downlink)
				if err != nil {
					return err
				}
				if err := g.ensureCable(torEnd, leafEnd); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// cableLeafUplinks wires a rack's leafs into every spine. The spine port is
// the row's leaf base plus the leaf's position within its row, keeping rows
// on disjoint spine port ranges.
func (g *Generator) cableLeafUplinks(pctx *podContext, rack int, offset fabric.Offset, leafs []deviceRef) error {
	uplink := pctx.uplinkType()
	// leaf downlink ports are claimed by ToR fan-in; uplinks start past
	// the largest possible downlink range
	leafUplinkBase := pctx.design.TorsPerRack
	if pctx.design.DeploymentType == constants.DeploymentMixed {
		leafUplinkBase = pctx.design.TorsPerRack * pctx.design.RacksPerRow
	}

	for l, leaf := range leafs {
		rowPos := leafRowPosition(pctx.design, rack, l+1)
		for s, spine := range pctx.spines {
			leafEnd, err := g.portOn(leaf, leafUplinkBase+s+1, uplink)
			if err != nil {
				return err
			}
			spineEnd, err := g.portOn(spine, offset.Leaf+rowPos, uplink)
			if err != nil {
				return err
			}
			if err := g.ensureCable(leafEnd, spineEnd); err != nil {
				return err
			}
		}
	}
	return nil
}

// findRowLeafs resolves the middle rack's leafs of a row by their
// deterministic names
func (g *Generator) findRowLeafs(pctx *podContext, row int) ([]deviceRef, error) {
	coords := pctx.coords()
	coords.Row = row
	coords.Rack = 1

	leafOffset, err := fabric.ComputeOffset(fabric.OffsetRequest{
		Deployment: pctx.design.DeploymentType,
		RowIndex:   row,
		RackIndex:  1,
	}, pctx.design)
	if err != nil {
		return nil, err
	}

	leafs := make([]deviceRef, 0, leafsPerRack(pctx.design))
	for l := 1; l <= leafsPerRack(pctx.design); l++ {
		name, err := fabric.ResolveName(pctx.design.NamingStrategy, coords, constants.RoleLeaf, leafOffset.Leaf+l)
		if err != nil {
			return nil, err
		}

		found, err := g.inv.Filter("dcim", "devices", map[string]interface{}{
			"name": name, "site_id": pctx.siteID,
		})
		if err != nil {
			return nil, &fabric.InventoryError{Node: name, Op: "find row leaf", Err: err}
		}
		if len(found) == 0 {
			return nil, fmt.Errorf("row %d has no middle-rack leaf %s; generate rack 1 of the row first", row, name)
		}
		leafs = append(leafs, deviceRef{Name: name, ID: utils.GetIDFromObject(found[0])})
	}

	return leafs, nil
}
