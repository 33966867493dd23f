package generator

import (
	"fmt"
	"sort"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/catalog"
	"github.com/braunma/netbox-fabric-generator/pkg/client"
	"github.com/braunma/netbox-fabric-generator/pkg/fabric"
	"github.com/braunma/netbox-fabric-generator/pkg/ipam"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// Inventory is the slice of the inventory client the generators need. Every
// write goes through GetOrCreate (or the allocator) so a re-run converges
// instead of duplicating records.
type Inventory interface {
	GetOrCreate(app, endpoint string, lookup, payload map[string]interface{}) (client.Result, error)
	Filter(app, endpoint string, filters map[string]interface{}) ([]client.Object, error)
	CreateBulk(app, endpoint string, items []map[string]interface{}) ([]client.Object, error)
	Update(app, endpoint string, id int, data map[string]interface{}) error
	AllocatePrefix(parentID, length int, payload map[string]interface{}) (client.Object, error)
	AllocateAddress(prefixID int, payload map[string]interface{}) (client.Object, error)
}

// Generator materializes fabric topology for one hierarchy node and its
// children: devices, interfaces, cables and pool-derived addresses. One
// Generator serves one invocation; its caches are not shared.
type Generator struct {
	inv     Inventory
	catalog *catalog.Catalog
	alloc   *ipam.Allocator
	logger  *utils.Logger

	// resolved-name registry guarding against naming-strategy collisions
	names map[string]models.Coordinates
	// order-independent cable pair IDs processed this run
	cabledPairs map[string]bool
	// role/device-type ID cache
	ids map[string]int
	// super-spine tier per data center, built once per run
	superspines map[string][]deviceRef
}

// New creates a generator bound to one invocation
func New(inv Inventory, cat *catalog.Catalog, logger *utils.Logger) *Generator {
	return &Generator{
		inv:         inv,
		catalog:     cat,
		alloc:       ipam.NewAllocator(inv, logger),
		logger:      logger,
		names:       make(map[string]models.Coordinates),
		cabledPairs: make(map[string]bool),
		ids:         make(map[string]int),
		superspines: make(map[string][]deviceRef),
	}
}

// recordName enforces global name uniqueness within the run. Two distinct
// coordinates resolving to one name is a naming-strategy bug and is
// reported, never papered over.
func (g *Generator) recordName(name string, coords models.Coordinates) error {
	if prior, ok := g.names[name]; ok {
		if prior != coords {
			return &fabric.DuplicateNameError{Name: name, First: prior, Second: coords}
		}
		return nil
	}
	g.names[name] = coords
	return nil
}

// ensureSite creates or finds the site record for a data center
func (g *Generator) ensureSite(dc *models.DataCenterBinding) (int, error) {
	slug := utils.Slugify(dc.Name)
	result, err := g.inv.GetOrCreate("dcim", "sites",
		map[string]interface{}{"slug": slug},
		map[string]interface{}{
			"name":   dc.Name,
			"slug":   slug,
			"status": constants.StatusActive,
		})
	if err != nil {
		return 0, &fabric.InventoryError{Node: dc.Name, Op: "ensure site", Err: err}
	}
	return utils.GetIDFromObject(result.Object), nil
}

// ensureRole creates or finds a device role by slug
func (g *Generator) ensureRole(slug string) (int, error) {
	key := "role:" + slug
	if id, ok := g.ids[key]; ok {
		return id, nil
	}

	result, err := g.inv.GetOrCreate("dcim", "device-roles",
		map[string]interface{}{"slug": slug},
		map[string]interface{}{"name": slug, "slug": slug, "color": "2196f3"})
	if err != nil {
		return 0, &fabric.InventoryError{Node: slug, Op: "ensure role", Err: err}
	}

	id := utils.GetIDFromObject(result.Object)
	g.ids[key] = id
	return id, nil
}

// ensureDeviceType creates or finds a device type by slug
func (g *Generator) ensureDeviceType(slug string) (int, error) {
	if slug == "" {
		slug = "fabric-switch"
	}
	key := "device_type:" + slug
	if id, ok := g.ids[key]; ok {
		return id, nil
	}

	result, err := g.inv.GetOrCreate("dcim", "device-types",
		map[string]interface{}{"slug": slug},
		map[string]interface{}{"model": slug, "slug": slug})
	if err != nil {
		return 0, &fabric.InventoryError{Node: slug, Op: "ensure device type", Err: err}
	}

	id := utils.GetIDFromObject(result.Object)
	g.ids[key] = id
	return id, nil
}

// ensureDevice creates or finds one device record by name
func (g *Generator) ensureDevice(name string, coords models.Coordinates, roleSlug, typeSlug string, siteID, rackID int) (int, error) {
	if err := g.recordName(name, coords); err != nil {
		return 0, err
	}

	roleID, err := g.ensureRole(roleSlug)
	if err != nil {
		return 0, err
	}
	typeID, err := g.ensureDeviceType(typeSlug)
	if err != nil {
		return 0, err
	}

	payload := map[string]interface{}{
		"name":        name,
		"site":        siteID,
		"role":        roleID,
		"device_type": typeID,
		"status":      constants.StatusActive,
	}
	if rackID > 0 {
		payload["rack"] = rackID
	}

	result, err := g.inv.GetOrCreate("dcim", "devices",
		map[string]interface{}{"name": name, "site_id": siteID}, payload)
	if err != nil {
		return 0, &fabric.InventoryError{Node: name, Op: "ensure device", Err: err}
	}

	return utils.GetIDFromObject(result.Object), nil
}

// ensureInterface creates or finds an interface on a device
func (g *Generator) ensureInterface(deviceID int, deviceName, name, ifType string) (int, error) {
	result, err := g.inv.GetOrCreate("dcim", "interfaces",
		map[string]interface{}{"device_id": deviceID, "name": name},
		map[string]interface{}{
			"device":  deviceID,
			"name":    name,
			"type":    ifType,
			"enabled": true,
		})
	if err != nil {
		return 0, &fabric.InventoryError{Node: deviceName, Op: "ensure interface " + name, Err: err}
	}
	return utils.GetIDFromObject(result.Object), nil
}

// attachManagement allocates the device's management and loopback addresses
// from the given pools and binds them to eth0 and lo0. The management
// address becomes the device's primary IP.
func (g *Generator) attachManagement(deviceID int, name string, mgmtPool, techPool ipam.PoolRef) error {
	mgmtIface, err := g.ensureInterface(deviceID, name, constants.ManagementInterface, constants.ManagementInterfaceType)
	if err != nil {
		return err
	}
	loIface, err := g.ensureInterface(deviceID, name, constants.LoopbackInterface, constants.LoopbackInterfaceType)
	if err != nil {
		return err
	}

	mgmt, err := g.alloc.AllocateAddress(mgmtPool, name+":management", constants.PoolRoleManagement)
	if err != nil {
		return err
	}
	if err := g.assignAddress(mgmt, name, mgmtIface); err != nil {
		return err
	}

	loopback, err := g.alloc.AllocateAddress(techPool, name+":loopback", constants.PoolRoleLoopback)
	if err != nil {
		return err
	}
	if err := g.assignAddress(loopback, name, loIface); err != nil {
		return err
	}

	if deviceID > 0 && mgmt.ID > 0 {
		if err := g.inv.Update("dcim", "devices", deviceID, map[string]interface{}{
			"primary_ip4": mgmt.ID,
		}); err != nil {
			return &fabric.InventoryError{Node: name, Op: "set primary IP", Err: err}
		}
	}

	return nil
}

// assignAddress binds an allocated address to an interface. The PATCH is
// issued with identical values on re-runs, so it converges.
func (g *Generator) assignAddress(alloc ipam.Allocation, deviceName string, ifaceID int) error {
	if alloc.ID == 0 || ifaceID == 0 {
		return nil
	}
	err := g.inv.Update("ipam", "ip-addresses", alloc.ID, map[string]interface{}{
		"assigned_object_type": "dcim.interface",
		"assigned_object_id":   ifaceID,
	})
	if err != nil {
		return &fabric.InventoryError{Node: deviceName, Op: "assign address " + alloc.CIDR, Err: err}
	}
	return nil
}

// deviceRef is a created device, referenced when wiring cables to it
type deviceRef struct {
	Name string
	ID   int
}

// endpoint describes one end of a cable
type endpoint struct {
	DeviceName    string
	InterfaceID   int
	InterfaceType string
}

// portOn resolves (creating if needed) a fabric port on a device and
// returns it as a cable endpoint
func (g *Generator) portOn(dev deviceRef, port int, ifType string) (endpoint, error) {
	ifaceID, err := g.ensureInterface(dev.ID, dev.Name, utils.FabricPort(port), ifType)
	if err != nil {
		return endpoint{}, err
	}
	return endpoint{DeviceName: dev.Name, InterfaceID: ifaceID, InterfaceType: ifType}, nil
}

// ensureCable creates the cable between two interfaces if it does not
// exist, classifying the medium from the interface types at both ends.
// A→B and B→A are the same cable.
func (g *Generator) ensureCable(a, b endpoint) error {
	pairID := cablePairID(a.InterfaceID, b.InterfaceID)
	if g.cabledPairs[pairID] {
		return nil
	}
	g.cabledPairs[pairID] = true

	if a.InterfaceID == 0 || b.InterfaceID == 0 {
		// dry-run placeholders have no IDs to terminate on
		return nil
	}

	existing, err := g.findCable(a.InterfaceID, b.InterfaceID)
	if err != nil {
		return &fabric.InventoryError{Node: a.DeviceName, Op: "find cable", Err: err}
	}
	if existing != nil {
		return nil
	}

	medium := fabric.ResolveMedium(a.InterfaceType, b.InterfaceType)
	payload := map[string]interface{}{
		"a_terminations": []map[string]interface{}{
			{"object_type": "dcim.interface", "object_id": a.InterfaceID},
		},
		"b_terminations": []map[string]interface{}{
			{"object_type": "dcim.interface", "object_id": b.InterfaceID},
		},
		"status": constants.StatusConnected,
		"type":   medium,
	}
	if color := fabric.MediumColor(medium); color != "" {
		payload["color"] = color
	}

	g.logger.Debug("  Cable %s ↔ %s (%s)", a.DeviceName, b.DeviceName, medium)
	if _, err := g.inv.GetOrCreate("dcim", "cables",
		map[string]interface{}{
			"termination_a_type": "dcim.interface",
			"termination_a_id":   a.InterfaceID,
			"termination_b_type": "dcim.interface",
			"termination_b_id":   b.InterfaceID,
		}, payload); err != nil {
		return &fabric.InventoryError{Node: a.DeviceName, Op: "create cable", Err: err}
	}

	return nil
}

// findCable searches both directions, cables are bidirectional
func (g *Generator) findCable(aID, bID int) (client.Object, error) {
	for _, pair := range [][2]int{{aID, bID}, {bID, aID}} {
		cables, err := g.inv.Filter("dcim", "cables", map[string]interface{}{
			"termination_a_type": "dcim.interface",
			"termination_a_id":   pair[0],
		})
		if err != nil {
			return nil, err
		}
		for _, cable := range cables {
			if utils.GetIDFromObject(cable["termination_b_id"]) == pair[1] {
				return cable, nil
			}
		}
	}
	return nil, nil
}

// cablePairID builds an order-independent identity for a cable
func cablePairID(aID, bID int) string {
	ids := []int{aID, bID}
	sort.Ints(ids)
	return fmt.Sprintf("%d<->%d", ids[0], ids[1])
}

// ensureParentPool creates or finds a container prefix record
func (g *Generator) ensureParentPool(prefix string) (ipam.PoolRef, error) {
	if prefix == "" {
		return ipam.PoolRef{}, fmt.Errorf("no parent pool configured")
	}

	result, err := g.inv.GetOrCreate("ipam", "prefixes",
		map[string]interface{}{"prefix": prefix},
		map[string]interface{}{"prefix": prefix, "status": "container"})
	if err != nil {
		return ipam.PoolRef{}, &fabric.InventoryError{Node: prefix, Op: "ensure parent pool", Err: err}
	}

	return ipam.PoolRef{ID: utils.GetIDFromObject(result.Object), Prefix: prefix}, nil
}
