package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/braunma/netbox-fabric-generator/internal/constants"
	"github.com/braunma/netbox-fabric-generator/pkg/models"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

// Catalog holds the immutable pod design and site layout templates plus the
// data center bindings that tie named hierarchy nodes to them. Templates are
// loaded once at startup and read-only thereafter; generators take a catalog
// handle instead of reaching for shared state.
type Catalog struct {
	designs     map[string]*models.PodDesign
	layouts     map[string]*models.SiteLayout
	dataCenters map[string]*models.DataCenterBinding
	logger      *utils.Logger
}

// Load reads designs/, layouts/ and datacenters/ YAML folders under basePath.
// Each file holds a YAML list of the respective template kind.
func Load(basePath string, logger *utils.Logger) (*Catalog, error) {
	c := &Catalog{
		designs:     make(map[string]*models.PodDesign),
		layouts:     make(map[string]*models.SiteLayout),
		dataCenters: make(map[string]*models.DataCenterBinding),
		logger:      logger,
	}

	var designs []*models.PodDesign
	if err := loadFolder(basePath, "designs", &designs); err != nil {
		return nil, fmt.Errorf("failed to load designs: %w", err)
	}
	for _, d := range designs {
		if err := validateDesignTemplate(d); err != nil {
			return nil, fmt.Errorf("invalid design %q: %w", d.Name, err)
		}
		if _, dup := c.designs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate design name %q", d.Name)
		}
		c.designs[d.Name] = d
	}
	logger.Debug("Loaded %d pod designs", len(c.designs))

	var layouts []*models.SiteLayout
	if err := loadFolder(basePath, "layouts", &layouts); err != nil {
		return nil, fmt.Errorf("failed to load layouts: %w", err)
	}
	for _, l := range layouts {
		if l.Name == "" {
			return nil, fmt.Errorf("layout without a name in %s/layouts", basePath)
		}
		if _, dup := c.layouts[l.Name]; dup {
			return nil, fmt.Errorf("duplicate layout name %q", l.Name)
		}
		c.layouts[l.Name] = l
	}
	logger.Debug("Loaded %d site layouts", len(c.layouts))

	var dcs []*models.DataCenterBinding
	if err := loadFolder(basePath, "datacenters", &dcs); err != nil {
		return nil, fmt.Errorf("failed to load data centers: %w", err)
	}
	for _, dc := range dcs {
		if _, dup := c.dataCenters[dc.Name]; dup {
			return nil, fmt.Errorf("duplicate data center name %q", dc.Name)
		}
		c.dataCenters[dc.Name] = dc
	}
	logger.Debug("Loaded %d data center bindings", len(c.dataCenters))

	return c, nil
}

// GetDesign looks up a pod design by name
func (c *Catalog) GetDesign(name string) (*models.PodDesign, error) {
	design, ok := c.designs[name]
	if !ok {
		return nil, fmt.Errorf("pod design %q not found in catalog", name)
	}
	return design, nil
}

// GetLayout looks up a site layout by name
func (c *Catalog) GetLayout(name string) (*models.SiteLayout, error) {
	layout, ok := c.layouts[name]
	if !ok {
		return nil, fmt.Errorf("site layout %q not found in catalog", name)
	}
	return layout, nil
}

// GetDataCenter looks up a data center binding by name
func (c *Catalog) GetDataCenter(name string) (*models.DataCenterBinding, error) {
	dc, ok := c.dataCenters[name]
	if !ok {
		return nil, fmt.Errorf("data center %q not found in catalog", name)
	}
	return dc, nil
}

// FindPodBinding locates the data center that binds a named pod
func (c *Catalog) FindPodBinding(podName string) (*models.DataCenterBinding, *models.PodBinding, error) {
	for _, dc := range c.dataCenters {
		if binding, ok := dc.FindPod(podName); ok {
			return dc, binding, nil
		}
	}
	return nil, nil, fmt.Errorf("pod %q not bound in any data center", podName)
}

// validateDesignTemplate rejects templates the generators cannot act on
func validateDesignTemplate(d *models.PodDesign) error {
	if d.Name == "" {
		return fmt.Errorf("design name is required")
	}

	switch d.DeploymentType {
	case constants.DeploymentMiddleRack, constants.DeploymentTor, constants.DeploymentMixed:
	default:
		return fmt.Errorf("unknown deployment type %q", d.DeploymentType)
	}

	switch d.NamingStrategy {
	case "", constants.NamingStandard, constants.NamingHierarchical, constants.NamingFlat:
	default:
		return fmt.Errorf("unknown naming strategy %q", d.NamingStrategy)
	}

	if d.NamingStrategy == "" {
		d.NamingStrategy = constants.NamingStandard
	}

	return validateRowContents(d)
}

// validateRowContents rejects designs whose actual row contents exceed their
// declared per-row maxima. The maxima size the upstream port reservations,
// so exceeding them would cable two switches onto the same upstream port.
func validateRowContents(d *models.PodDesign) error {
	perRackLeafs := d.LeafsPerRack
	if perRackLeafs == 0 {
		perRackLeafs = d.MaxLeafsPerRow
	}

	torRacks := d.RacksPerRow
	if d.DeploymentType == constants.DeploymentMixed && torRacks > 0 {
		// rack 1 of a mixed row is the middle rack and holds no ToRs
		torRacks--
	}
	if tors := d.TorsPerRack * torRacks; tors > d.MaxTorsPerRow {
		return fmt.Errorf("rows hold %d ToRs (%d per rack in %d ToR racks) but max_tors_per_row is %d",
			tors, d.TorsPerRack, torRacks, d.MaxTorsPerRow)
	}

	leafRacks := d.RacksPerRow
	if d.DeploymentType == constants.DeploymentMixed {
		// all of a mixed row's leafs live in the middle rack
		leafRacks = 1
	}
	if d.DeploymentType != constants.DeploymentTor && d.RacksPerRow > 0 {
		if leafs := perRackLeafs * leafRacks; leafs > d.MaxLeafsPerRow {
			return fmt.Errorf("rows hold %d leafs (%d per rack in %d racks) but max_leafs_per_row is %d",
				leafs, perRackLeafs, leafRacks, d.MaxLeafsPerRow)
		}
	}

	return nil
}

// loadFolder loads all YAML list files under basePath/folder into target
func loadFolder(basePath, folder string, target interface{}) error {
	targetDir := filepath.Join(basePath, folder)

	if _, err := os.Stat(targetDir); os.IsNotExist(err) {
		return nil
	}

	files, err := findYAMLFiles(targetDir)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", targetDir, err)
	}

	for _, file := range files {
		if err := loadFile(file, target); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// loadFile unmarshals one YAML list file and appends its items to target
func loadFile(path string, target interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	switch t := target.(type) {
	case *[]*models.PodDesign:
		var items []*models.PodDesign
		if err := yaml.Unmarshal(content, &items); err != nil {
			return fmt.Errorf("failed to unmarshal designs: %w", err)
		}
		*t = append(*t, items...)
	case *[]*models.SiteLayout:
		var items []*models.SiteLayout
		if err := yaml.Unmarshal(content, &items); err != nil {
			return fmt.Errorf("failed to unmarshal layouts: %w", err)
		}
		*t = append(*t, items...)
	case *[]*models.DataCenterBinding:
		var items []*models.DataCenterBinding
		if err := yaml.Unmarshal(content, &items); err != nil {
			return fmt.Errorf("failed to unmarshal data centers: %w", err)
		}
		*t = append(*t, items...)
	default:
		return fmt.Errorf("unsupported target type: %T", target)
	}

	return nil
}

// findYAMLFiles recursively finds all YAML files in a directory
func findYAMLFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			ext := filepath.Ext(path)
			if ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}
		}

		return nil
	})

	return files, err
}
