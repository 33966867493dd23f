package constants

// Deployment types supported by pod designs
const (
	DeploymentMiddleRack = "middle_rack"
	DeploymentTor        = "tor"
	DeploymentMixed      = "mixed"
)

// Device roles, ordered rack to data center
const (
	RoleTor        = "tor"
	RoleLeaf       = "leaf"
	RoleSpine      = "spine"
	RoleSuperSpine = "superspine"
)

// Naming strategies
const (
	NamingStandard     = "standard"
	NamingHierarchical = "hierarchical"
	NamingFlat         = "flat"
)

// Pool prefix lengths per role class. Address pools always carve host routes.
const (
	ManagementPrefixLength = 24
	TechnicalPrefixLength  = 27
	HostPrefixLength       = 32
)

// Pool role tags (metadata only, never affects carving)
const (
	PoolRoleManagement = "management"
	PoolRoleLoopback   = "loopback"
)

// Leaf switches housed per network rack; bounds max_leafs_per_row
const LeafsPerNetworkRack = 4

// Interface names
const (
	ManagementInterface     = "eth0"
	ManagementInterfaceType = "1000base-t"
	LoopbackInterface       = "lo0"
	LoopbackInterfaceType   = "virtual"
	FabricPortPrefix        = "swp"
)

// Cable media (NetBox cable type slugs)
const (
	MediumCopper       = "cat6a"
	MediumMultiMode    = "mmf-om4"
	MediumSingleMode   = "smf-os2"
	MediumDirectAttach = "aoc"
)

// Copper interface-type family; everything else is treated as optical
var CopperInterfaceTypes = []string{
	"100base-tx",
	"1000base-t",
	"2.5gbase-t",
	"5gbase-t",
	"10gbase-t",
}

// Default statuses
const (
	StatusActive    = "active"
	StatusConnected = "connected"
)

// Cable colors per medium
var MediumColorMap = map[string]string{
	MediumCopper:       "ffeb3b",
	MediumMultiMode:    "2196f3",
	MediumSingleMode:   "9c27b0",
	MediumDirectAttach: "000000",
}
