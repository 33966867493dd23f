package generator

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/braunma/netbox-fabric-generator/pkg/catalog"
	"github.com/braunma/netbox-fabric-generator/pkg/client"
	"github.com/braunma/netbox-fabric-generator/pkg/fabric"
	"github.com/braunma/netbox-fabric-generator/pkg/ipam"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// fakeInventory is an in-memory inventory honoring the lookup and carving
// semantics the generator relies on: filters match stored objects, prefix
// and address allocation carve sequentially and fail with ErrPoolExhausted
// when the parent runs out.
type fakeInventory struct {
	objects map[string][]client.Object
	nextID  int
	creates int
	carve   map[int]int
	hosts   map[int]int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		objects: make(map[string][]client.Object),
		carve:   make(map[int]int),
		hosts:   make(map[int]int),
	}
}

func (f *fakeInventory) matches(key string, obj client.Object, filters map[string]interface{}) bool {
	for k, want := range filters {
		got, ok := obj[k]
		if !ok {
			got, ok = obj[strings.TrimSuffix(k, "_id")]
		}
		if ok && fmt.Sprint(got) == fmt.Sprint(want) {
			continue
		}
		// device role filters use the slug, stored devices hold the ID
		if ok && key == "dcim/devices" && k == "role" {
			if id, found := f.roleID(fmt.Sprint(want)); found && fmt.Sprint(got) == fmt.Sprint(id) {
				continue
			}
		}
		return false
	}
	return true
}

func (f *fakeInventory) roleID(slug string) (int, bool) {
	for _, obj := range f.objects["dcim/device-roles"] {
		if utils.GetStringField(obj, "slug") == slug {
			return utils.GetIDFromObject(obj), true
		}
	}
	return 0, false
}

func (f *fakeInventory) byID(key string, id int) client.Object {
	for _, obj := range f.objects[key] {
		if utils.GetIDFromObject(obj) == id {
			return obj
		}
	}
	return nil
}

func (f *fakeInventory) create(key string, payload map[string]interface{}) client.Object {
	obj := client.Object{}
	for k, v := range payload {
		obj[k] = v
	}
	if key == "dcim/cables" {
		flattenTermination(obj, "a")
		flattenTermination(obj, "b")
	}
	f.nextID++
	obj["id"] = f.nextID
	f.creates++
	f.objects[key] = append(f.objects[key], obj)
	return obj
}

// flattenTermination mirrors the server-side filterable termination fields
func flattenTermination(obj client.Object, side string) {
	terms, ok := obj[side+"_terminations"].([]map[string]interface{})
	if !ok || len(terms) == 0 {
		return
	}
	obj["termination_"+side+"_type"] = terms[0]["object_type"]
	obj["termination_"+side+"_id"] = terms[0]["object_id"]
}

func (f *fakeInventory) Filter(app, endpoint string, filters map[string]interface{}) ([]client.Object, error) {
	key := app + "/" + endpoint
	var out []client.Object
	for _, obj := range f.objects[key] {
		if f.matches(key, obj, filters) {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeInventory) GetOrCreate(app, endpoint string, lookup, payload map[string]interface{}) (client.Result, error) {
	existing, _ := f.Filter(app, endpoint, lookup)
	if len(existing) > 0 {
		return client.Result{Object: existing[0]}, nil
	}
	return client.Result{Object: f.create(app+"/"+endpoint, payload), Created: true}, nil
}

func (f *fakeInventory) CreateBulk(app, endpoint string, items []map[string]interface{}) ([]client.Object, error) {
	out := make([]client.Object, 0, len(items))
	for _, item := range items {
		out = append(out, f.create(app+"/"+endpoint, item))
	}
	return out, nil
}

func (f *fakeInventory) Update(app, endpoint string, id int, data map[string]interface{}) error {
	obj := f.byID(app+"/"+endpoint, id)
	if obj == nil {
		return fmt.Errorf("%s/%s %d not found", app, endpoint, id)
	}
	for k, v := range data {
		obj[k] = v
	}
	return nil
}

func (f *fakeInventory) AllocatePrefix(parentID, length int, payload map[string]interface{}) (client.Object, error) {
	parent := f.byID("ipam/prefixes", parentID)
	if parent == nil {
		return nil, fmt.Errorf("parent prefix %d not found", parentID)
	}
	pp, err := netip.ParsePrefix(utils.GetStringField(parent, "prefix"))
	if err != nil {
		return nil, err
	}

	if length < pp.Bits() {
		return nil, client.ErrPoolExhausted
	}
	base := addrUint32(pp.Addr())
	childSize := uint32(1) << (32 - length)
	child := base + uint32(f.carve[parentID])*childSize
	if child+childSize > base+uint32(1)<<(32-pp.Bits()) {
		return nil, client.ErrPoolExhausted
	}
	f.carve[parentID]++

	return f.create("ipam/prefixes", map[string]interface{}{
		"prefix":      fmt.Sprintf("%s/%d", uint32Addr(child), length),
		"within":      utils.GetStringField(parent, "prefix"),
		"description": payload["description"],
	}), nil
}

func (f *fakeInventory) AllocateAddress(prefixID int, payload map[string]interface{}) (client.Object, error) {
	pool := f.byID("ipam/prefixes", prefixID)
	if pool == nil {
		return nil, fmt.Errorf("pool prefix %d not found", prefixID)
	}
	pp, err := netip.ParsePrefix(utils.GetStringField(pool, "prefix"))
	if err != nil {
		return nil, err
	}

	next := f.hosts[prefixID] + 1
	if uint32(next) >= uint32(1)<<(32-pp.Bits())-1 {
		return nil, client.ErrPoolExhausted
	}
	f.hosts[prefixID] = next

	return f.create("ipam/ip-addresses", map[string]interface{}{
		"address":     fmt.Sprintf("%s/%d", uint32Addr(addrUint32(pp.Addr())+uint32(next)), pp.Bits()),
		"parent":      utils.GetStringField(pool, "prefix"),
		"description": payload["description"],
	}), nil
}

func addrUint32(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uint32Addr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}

func (f *fakeInventory) count(key string) int {
	return len(f.objects[key])
}

func testCatalog(t *testing.T, designs string) *catalog.Catalog {
	t.Helper()
	return testCatalogWith(t, designs, `
- name: fra1
  fabric: prod
  dc: 1
  superspine_count: 2
  management_pool: 10.64.0.0/16
  technical_pool: 10.65.0.0/16
  pods:
    - name: fra1-pod1
      design: pod-design
      layout: standard
      pod: 1
`)
}

func testCatalogWith(t *testing.T, designs, datacenters string) *catalog.Catalog {
	t.Helper()
	base := t.TempDir()

	write := func(folder, content string) {
		dir := filepath.Join(base, folder)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, folder+".yaml"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("designs", designs)
	write("layouts", `
- name: standard
  compute_racks_per_row: 8
  network_racks_per_row: 1
`)
	write("datacenters", datacenters)

	c, err := catalog.Load(base, utils.NewLogger(true))
	if err != nil {
		t.Fatalf("catalog load error = %v", err)
	}
	return c
}

const middleRackDesign = `
- name: pod-design
  deployment_type: middle_rack
  spine_count: 2
  max_tors_per_row: 4
  max_leafs_per_row: 4
  tors_per_rack: 2
  leafs_per_rack: 2
  rows: 2
  racks_per_row: 2
`

func TestGeneratePodMiddleRack(t *testing.T) {
	cat := testCatalog(t, middleRackDesign)
	inv := newFakeInventory()

	if err := New(inv, cat, utils.NewLogger(true)).GeneratePod("fra1-pod1"); err != nil {
		t.Fatalf("GeneratePod() error = %v", err)
	}

	// 2 super-spines, 2 spines, 4 racks of 2 ToRs + 2 leafs
	if got := inv.count("dcim/devices"); got != 20 {
		t.Errorf("device count = %d, expected 20", got)
	}
	// spine↔superspine 4, ToR↔leaf 16, leaf↔spine 16
	if got := inv.count("dcim/cables"); got != 36 {
		t.Errorf("cable count = %d, expected 36", got)
	}
	// every device holds a management and a loopback address
	if got := inv.count("ipam/ip-addresses"); got != 40 {
		t.Errorf("address count = %d, expected 40", got)
	}

	superspines, _ := inv.Filter("dcim", "devices", map[string]interface{}{"name": "prod-fab1-superspine-01"})
	if len(superspines) != 1 {
		t.Error("super-spine prod-fab1-superspine-01 missing")
	}
	tors, _ := inv.Filter("dcim", "devices", map[string]interface{}{"name": "prod-fab1-pod1-row2-rack2-tor-02"})
	if len(tors) != 1 {
		t.Error("ToR prod-fab1-pod1-row2-rack2-tor-02 missing")
	}
}

func TestGeneratePodIdempotent(t *testing.T) {
	cat := testCatalog(t, middleRackDesign)
	inv := newFakeInventory()

	if err := New(inv, cat, utils.NewLogger(true)).GeneratePod("fra1-pod1"); err != nil {
		t.Fatalf("first GeneratePod() error = %v", err)
	}

	before := map[string]int{}
	for key := range inv.objects {
		before[key] = inv.count(key)
	}
	createsBefore := inv.creates

	// a fresh generator carries none of the first run's caches
	if err := New(inv, cat, utils.NewLogger(true)).GeneratePod("fra1-pod1"); err != nil {
		t.Fatalf("second GeneratePod() error = %v", err)
	}

	if inv.creates != createsBefore {
		t.Errorf("second run created %d objects, expected 0", inv.creates-createsBefore)
	}
	for key, n := range before {
		if got := inv.count(key); got != n {
			t.Errorf("%s count changed %d → %d across runs", key, n, got)
		}
	}
}

func TestGeneratePodValidationAbortsBeforeWrites(t *testing.T) {
	cat := testCatalog(t, `
- name: pod-design
  deployment_type: tor
  spine_count: 2
  max_tors_per_row: 10
  tors_per_rack: 2
  rows: 1
  racks_per_row: 5
`)
	inv := newFakeInventory()

	err := New(inv, cat, utils.NewLogger(true)).GeneratePod("fra1-pod1")
	var capErr *fabric.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("GeneratePod() error = %v, expected CapacityError", err)
	}
	if capErr.Required != 10 || capErr.Available != 8 {
		t.Errorf("CapacityError = %d/%d, expected 10 required, 8 available", capErr.Required, capErr.Available)
	}
	if inv.creates != 0 {
		t.Errorf("validation failure still wrote %d objects", inv.creates)
	}
}

func TestGeneratePodFlatNamingCollision(t *testing.T) {
	// middle_rack ToR offsets restart at zero in every rack, so flat
	// naming resolves the same ToR name for different racks
	cat := testCatalog(t, `
- name: pod-design
  deployment_type: middle_rack
  spine_count: 1
  max_tors_per_row: 2
  max_leafs_per_row: 2
  tors_per_rack: 1
  leafs_per_rack: 1
  rows: 1
  racks_per_row: 2
  naming_strategy: flat
`)
	inv := newFakeInventory()

	err := New(inv, cat, utils.NewLogger(true)).GeneratePod("fra1-pod1")
	var dupErr *fabric.DuplicateNameError
	if !errors.As(err, &dupErr) {
		t.Fatalf("GeneratePod() error = %v, expected DuplicateNameError", err)
	}
	if dupErr.Name != "prod-tor-01" {
		t.Errorf("colliding name = %q, expected prod-tor-01", dupErr.Name)
	}
}

func TestGeneratePodMixedRowWiring(t *testing.T) {
	cat := testCatalog(t, `
- name: pod-design
  deployment_type: mixed
  spine_count: 1
  max_tors_per_row: 4
  max_leafs_per_row: 2
  tors_per_rack: 2
  leafs_per_rack: 2
  rows: 1
  racks_per_row: 3
`)
	inv := newFakeInventory()

	if err := New(inv, cat, utils.NewLogger(true)).GeneratePod("fra1-pod1"); err != nil {
		t.Fatalf("GeneratePod() error = %v", err)
	}

	// 2 super-spines, 1 spine, middle rack with 2 leafs, 2 ToR racks of 2
	if got := inv.count("dcim/devices"); got != 9 {
		t.Errorf("device count = %d, expected 9", got)
	}

	leafs, _ := inv.Filter("dcim", "devices", map[string]interface{}{"name": "prod-fab1-pod1-row1-rack1-leaf-01"})
	if len(leafs) != 1 {
		t.Fatal("middle-rack leaf missing")
	}
	leafID := utils.GetIDFromObject(leafs[0])

	// rack 3's ToRs land past rack 2's: swp1-2 from rack 2, swp3-4 from
	// rack 3, uplink past the row's full ToR reservation on swp7
	for _, port := range []string{"swp1", "swp2", "swp3", "swp4", "swp7"} {
		ifaces, _ := inv.Filter("dcim", "interfaces", map[string]interface{}{
			"device_id": leafID, "name": port,
		})
		if len(ifaces) != 1 {
			t.Errorf("leaf interface %s missing", port)
		}
	}

	// ToR↔leaf 4×2, leaf↔spine 2, spine↔superspine 2
	if got := inv.count("dcim/cables"); got != 12 {
		t.Errorf("cable count = %d, expected 12", got)
	}
}

func TestGenerateRackOutOfBounds(t *testing.T) {
	cat := testCatalog(t, middleRackDesign)
	inv := newFakeInventory()

	err := New(inv, cat, utils.NewLogger(true)).GenerateRack("fra1-pod1", 3, 1)
	if err == nil {
		t.Fatal("GenerateRack() outside design bounds should fail")
	}
}

func TestGenerateDataCenter(t *testing.T) {
	cat := testCatalog(t, middleRackDesign)
	inv := newFakeInventory()

	if err := New(inv, cat, utils.NewLogger(true)).GenerateDataCenter("fra1"); err != nil {
		t.Fatalf("GenerateDataCenter() error = %v", err)
	}

	if got := inv.count("dcim/devices"); got != 20 {
		t.Errorf("device count = %d, expected 20", got)
	}

	// super-spine addressing comes from data-center scoped sub-pools
	pools, _ := inv.Filter("ipam", "prefixes", map[string]interface{}{
		"description": "fra1-superspine:management",
	})
	if len(pools) != 1 {
		t.Error("super-spine management pool missing")
	}
}

func TestGenerateDataCenterHeterogeneousPods(t *testing.T) {
	cat := testCatalogWith(t, `
- name: big
  deployment_type: tor
  spine_count: 4
  max_tors_per_row: 2
  tors_per_rack: 1
  rows: 1
  racks_per_row: 2
- name: small
  deployment_type: tor
  spine_count: 2
  max_tors_per_row: 2
  tors_per_rack: 1
  rows: 1
  racks_per_row: 2
`, `
- name: fra1
  fabric: prod
  dc: 1
  superspine_count: 2
  management_pool: 10.64.0.0/16
  technical_pool: 10.65.0.0/16
  pods:
    - name: fra1-pod1
      design: big
      layout: standard
      pod: 1
    - name: fra1-pod2
      design: small
      layout: standard
      pod: 2
`)
	inv := newFakeInventory()

	if err := New(inv, cat, utils.NewLogger(true)).GenerateDataCenter("fra1"); err != nil {
		t.Fatalf("GenerateDataCenter() error = %v", err)
	}

	// pod 2's spines start past pod 1's 4-port block on every super-spine
	superspines, _ := inv.Filter("dcim", "devices", map[string]interface{}{"name": "prod-fab1-superspine-01"})
	if len(superspines) != 1 {
		t.Fatal("super-spine prod-fab1-superspine-01 missing")
	}
	superID := utils.GetIDFromObject(superspines[0])
	for _, port := range []string{"swp1", "swp2", "swp3", "swp4", "swp5", "swp6"} {
		ifaces, _ := inv.Filter("dcim", "interfaces", map[string]interface{}{
			"device_id": superID, "name": port,
		})
		if len(ifaces) != 1 {
			t.Errorf("super-spine interface %s missing", port)
		}
	}
	if ifaces, _ := inv.Filter("dcim", "interfaces", map[string]interface{}{
		"device_id": superID, "name": "swp7",
	}); len(ifaces) != 0 {
		t.Error("super-spine swp7 should be unused with 4+2 pod spines")
	}

	// a fabric port carries at most one cable
	seen := map[interface{}]bool{}
	for _, cable := range inv.objects["dcim/cables"] {
		for _, side := range []string{"a", "b"} {
			ifaceID := cable["termination_"+side+"_id"]
			if seen[ifaceID] {
				t.Errorf("interface %v terminates two cables", ifaceID)
			}
			seen[ifaceID] = true
		}
	}
}

func TestGeneratePoolExhaustion(t *testing.T) {
	cat := testCatalog(t, middleRackDesign)
	inv := newFakeInventory()

	// a /25 parent cannot yield any /24 child
	dc, err := cat.GetDataCenter("fra1")
	if err != nil {
		t.Fatal(err)
	}
	dc.ManagementPool = "10.64.0.0/25"

	genErr := New(inv, cat, utils.NewLogger(true)).GeneratePod("fra1-pod1")
	var poolErr *ipam.PoolExhaustedError
	if !errors.As(genErr, &poolErr) {
		t.Fatalf("GeneratePod() error = %v, expected PoolExhaustedError", genErr)
	}
	if poolErr.Length != 24 {
		t.Errorf("PoolExhaustedError.Length = %d, expected 24", poolErr.Length)
	}
}
