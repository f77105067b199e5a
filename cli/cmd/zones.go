package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuaworth/hoistwaywatch/cli/pkg/output"
	"github.com/joshuaworth/hoistwaywatch/common/models"
)

func newZonesCmd() *cobra.Command {
	zonesCmd := &cobra.Command{
		Use:   "zones",
		Short: "Work with camera zone configurations",
	}

	validateCmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a zone configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := models.LoadZones(args[0])
			if err != nil {
				return err
			}

			p := printer(cmd)
			if jsonOutput(cmd) {
				return p.JSON(cfg)
			}

			table := output.NewTable([]string{"ID", "POINTS", "POLYGON"})
			for _, z := range cfg.Zones {
				points := make([]string, 0, len(z.Polygon))
				for _, pt := range z.Polygon {
					points = append(points, fmt.Sprintf("(%g,%g)", pt[0], pt[1]))
				}
				table.AddRow([]string{z.ID, strconv.Itoa(len(z.Polygon)), strings.Join(points, " ")})
			}
			table.Render(p.Out)
			p.Success("%s: %d zones valid", args[0], len(cfg.Zones))
			return nil
		},
	}

	zonesCmd.AddCommand(validateCmd)
	return zonesCmd
}
