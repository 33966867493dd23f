package models

import "fmt"

// Coordinates pins a node to its position in the physical hierarchy.
// Row and rack positions are 1-indexed; zero means "not applicable at this
// scope" (e.g. a super-spine has no pod, row or rack).
type Coordinates struct {
	Fabric string `yaml:"fabric" json:"fabric"`
	DC     int    `yaml:"dc" json:"dc"`
	Pod    int    `yaml:"pod,omitempty" json:"pod,omitempty"`
	Row    int    `yaml:"row,omitempty" json:"row,omitempty"`
	Rack   int    `yaml:"rack,omitempty" json:"rack,omitempty"`
}

// String renders coordinates for diagnostics and duplicate-name reports
func (c Coordinates) String() string {
	return fmt.Sprintf("fabric=%s dc=%d pod=%d row=%d rack=%d", c.Fabric, c.DC, c.Pod, c.Row, c.Rack)
}

// PodBinding ties a named pod to the design and layout it is generated from.
type PodBinding struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Design string `yaml:"design" json:"design" validate:"required"`
	Layout string `yaml:"layout" json:"layout" validate:"required"`
	Pod    int    `yaml:"pod" json:"pod"`
}

// DataCenterBinding describes one data center and the pods bound into it.
type DataCenterBinding struct {
	Name            string       `yaml:"name" json:"name" validate:"required"`
	Fabric          string       `yaml:"fabric" json:"fabric" validate:"required"`
	DC              int          `yaml:"dc" json:"dc"`
	SuperSpineCount int          `yaml:"superspine_count,omitempty" json:"superspine_count,omitempty"`
	ManagementPool  string       `yaml:"management_pool" json:"management_pool"`
	TechnicalPool   string       `yaml:"technical_pool" json:"technical_pool"`
	Pods            []PodBinding `yaml:"pods,omitempty" json:"pods,omitempty"`
}

// FindPod returns the binding for a named pod, if it exists.
func (b *DataCenterBinding) FindPod(name string) (*PodBinding, bool) {
	for i := range b.Pods {
		if b.Pods[i].Name == name {
			return &b.Pods[i], true
		}
	}
	return nil, false
}
