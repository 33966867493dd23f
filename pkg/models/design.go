package models

import "strings"

// PodDesign is an immutable template describing how a pod's fabric is built:
// which deployment type, how many switches per tier, and which site layouts
// it may be generated into.
type PodDesign struct {
	Name             string   `yaml:"name" json:"name" validate:"required"`
	DeploymentType   string   `yaml:"deployment_type" json:"deployment_type" validate:"required"`
	SpineCount       int      `yaml:"spine_count" json:"spine_count" validate:"required"`
	MaxTorsPerRow    int      `yaml:"max_tors_per_row" json:"max_tors_per_row"`
	MaxLeafsPerRow   int      `yaml:"max_leafs_per_row" json:"max_leafs_per_row"`
	TorsPerRack      int      `yaml:"tors_per_rack" json:"tors_per_rack"`
	LeafsPerRack     int      `yaml:"leafs_per_rack,omitempty" json:"leafs_per_rack,omitempty"`
	Rows             int      `yaml:"rows" json:"rows"`
	RacksPerRow      int      `yaml:"racks_per_row" json:"racks_per_row"`
	NamingStrategy   string   `yaml:"naming_strategy,omitempty" json:"naming_strategy,omitempty"`
	UplinkType       string   `yaml:"uplink_type,omitempty" json:"uplink_type,omitempty"`
	DownlinkType     string   `yaml:"downlink_type,omitempty" json:"downlink_type,omitempty"`
	DeviceTypeSlug   string   `yaml:"device_type_slug,omitempty" json:"device_type_slug,omitempty"`
	CompatibleLayouts []string `yaml:"compatible_layouts,omitempty" json:"compatible_layouts,omitempty"`
}

// Slug generates a slug from the design name
func (d *PodDesign) Slug() string {
	return slugify(d.Name)
}

// AllowsLayout reports whether the design's layout whitelist admits the
// given layout. An empty whitelist admits every layout.
func (d *PodDesign) AllowsLayout(layoutName string) bool {
	if len(d.CompatibleLayouts) == 0 {
		return true
	}
	for _, name := range d.CompatibleLayouts {
		if name == layoutName {
			return true
		}
	}
	return false
}

// SiteLayout is an immutable template describing the physical rack slots a
// site offers per row, independent of any pod generated into it.
type SiteLayout struct {
	Name               string `yaml:"name" json:"name" validate:"required"`
	ComputeRacksPerRow int    `yaml:"compute_racks_per_row" json:"compute_racks_per_row" validate:"required"`
	NetworkRacksPerRow int    `yaml:"network_racks_per_row" json:"network_racks_per_row" validate:"required"`
}

// Slug generates a slug from the layout name
func (l *SiteLayout) Slug() string {
	return slugify(l.Name)
}

// slugify converts a string to a slug
func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
