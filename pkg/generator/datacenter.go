package generator

import (
	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/fabric"
	"github.com/braunma/netbox-fabric-generator/pkg/ipam"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
)

// GenerateDataCenter generates the full topology of one data center: its
// site, super-spine tier and every pod bound to it.
func (g *Generator) GenerateDataCenter(name string) error {
	dc, err := g.catalog.GetDataCenter(name)
	if err != nil {
		return err
	}

	g.logger.Section("Data center %s (fabric %s)", dc.Name, dc.Fabric)

	if _, err := g.ensureSite(dc); err != nil {
		return err
	}
	if _, err := g.ensureSuperSpines(dc); err != nil {
		return err
	}

	for i := range dc.Pods {
		if err := g.GeneratePod(dc.Pods[i].Name); err != nil {
			return err
		}
	}

	g.logger.Success("Data center %s generated", dc.Name)
	return nil
}

// ensureSuperSpines materializes a data center's super-spine tier. The tier
// is shared by every pod of the data center, so it is built at most once
// per run and its addressing comes from data-center scoped sub-pools, not
// from any pod's pools. Super-spine names are always data-center scoped.
func (g *Generator) ensureSuperSpines(dc *models.DataCenterBinding) ([]deviceRef, error) {
	if dc.SuperSpineCount == 0 {
		return nil, nil
	}
	if refs, ok := g.superspines[dc.Name]; ok {
		return refs, nil
	}

	siteID, err := g.ensureSite(dc)
	if err != nil {
		return nil, err
	}

	mgmtPool, techPool, err := g.superSpinePools(dc)
	if err != nil {
		return nil, err
	}

	coords := models.Coordinates{Fabric: dc.Fabric, DC: dc.DC}
	refs := make([]deviceRef, 0, dc.SuperSpineCount)
	for i := 1; i <= dc.SuperSpineCount; i++ {
		name, err := fabric.ResolveName(constants.NamingStandard, coords, constants.RoleSuperSpine, i)
		if err != nil {
			return nil, err
		}

		deviceID, err := g.ensureDevice(name, coords, constants.RoleSuperSpine, "", siteID, 0)
		if err != nil {
			return nil, err
		}
		if err := g.attachManagement(deviceID, name, mgmtPool, techPool); err != nil {
			return nil, err
		}

		refs = append(refs, deviceRef{Name: name, ID: deviceID})
	}

	g.superspines[dc.Name] = refs
	return refs, nil
}

// superSpinePools carves the super-spine tier's management and technical
// pools from the data center parent pools
func (g *Generator) superSpinePools(dc *models.DataCenterBinding) (mgmt, tech ipam.PoolRef, err error) {
	dcMgmt, err := g.ensureParentPool(dc.ManagementPool)
	if err != nil {
		return
	}
	dcTech, err := g.ensureParentPool(dc.TechnicalPool)
	if err != nil {
		return
	}

	identifier := dc.Name + "-superspine"
	m, err := g.alloc.AllocatePrefix(dcMgmt, identifier+":management",
		constants.ManagementPrefixLength, constants.PoolRoleManagement)
	if err != nil {
		return
	}
	t, err := g.alloc.AllocatePrefix(dcTech, identifier+":technical",
		constants.TechnicalPrefixLength, constants.PoolRoleLoopback)
	if err != nil {
		return
	}

	return m.Pool(), t.Pool(), nil
}
