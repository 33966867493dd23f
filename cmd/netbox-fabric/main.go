package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/braunma/netbox-fabric-generator/pkg/catalog"
	"github.com/braunma/netbox-fabric-generator/pkg/client"
	"github.com/braunma/netbox-fabric-generator/pkg/generator"
	"github.com/braunma/netbox-fabric-generator/pkg/utils"
)

var (
	dryRun     bool
	designsDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "netbox-fabric",
		Short: "NetBox Fabric Generator",
		Long:  `Deterministic spine/leaf fabric topology generation for NetBox from design templates`,
	}

	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Simulate changes without applying them")
	rootCmd.PersistentFlags().StringVar(&designsDir, "designs-dir", ".", "Base directory holding designs/, layouts/ and datacenters/")

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate fabric topology",
	}

	generateCmd.AddCommand(&cobra.Command{
		Use:   "dc <name>",
		Short: "Generate a full data center",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGenerator(func(g *generator.Generator) error {
				return g.GenerateDataCenter(args[0])
			})
		},
	})

	generateCmd.AddCommand(&cobra.Command{
		Use:   "pod <name>",
		Short: "Generate one pod of a data center",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGenerator(func(g *generator.Generator) error {
				return g.GeneratePod(args[0])
			})
		},
	})

	generateCmd.AddCommand(&cobra.Command{
		Use:   "rack <pod> <row> <rack>",
		Short: "Regenerate a single rack of a pod",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("row must be numeric: %w", err)
			}
			rack, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("rack must be numeric: %w", err)
			}
			return withGenerator(func(g *generator.Generator) error {
				return g.GenerateRack(args[0], row, rack)
			})
		},
	})

	rootCmd.AddCommand(generateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withGenerator wires the catalog and inventory client and hands a ready
// generator to the command body
func withGenerator(run func(g *generator.Generator) error) error {
	logger := utils.NewLogger(dryRun)

	netboxURL := os.Getenv("NETBOX_URL")
	netboxToken := os.Getenv("NETBOX_TOKEN")
	if netboxURL == "" || netboxToken == "" {
		logger.Error("NETBOX_URL and NETBOX_TOKEN environment variables must be set", nil)
		return fmt.Errorf("missing required environment variables")
	}

	cat, err := catalog.Load(designsDir, logger)
	if err != nil {
		logger.Error("Failed to load design catalog", err)
		return err
	}

	logger.Info("Initializing NetBox client...")
	c, err := client.NewClient(netboxURL, netboxToken, dryRun)
	if err != nil {
		logger.Error("Failed to initialize NetBox client", err)
		return err
	}

	if err := c.Cache().LoadGlobal(); err != nil {
		logger.Error("Failed to warm caches", err)
		return err
	}

	if err := run(generator.New(c, cat, logger)); err != nil {
		logger.Error("Generation failed", err)
		return err
	}

	if dryRun {
		logger.Warning("DRY RUN COMPLETE: No changes applied")
	} else {
		logger.Success("GENERATION COMPLETE: Changes applied successfully")
	}
	return nil
}
