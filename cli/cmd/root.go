package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joshuaworth/hoistwaywatch/cli/pkg/output"
	"github.com/joshuaworth/hoistwaywatch/common/config"
)

// NewRootCmd builds the hwctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hwctl",
		Short: "HoistwayWatch operator CLI",
		Long: `hwctl is the command-line interface for HoistwayWatch.

Validate rule and zone files, replay recorded events through the rule
engine, inspect alert logs and publish synthetic sensor events.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("output")
			if format != "table" && format != "json" {
				return fmt.Errorf("unsupported output format %q: use table or json", format)
			}
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				color.NoColor = true
			}
			return nil
		},
	}

	root.PersistentFlags().String("config", "", "config file (YAML) for nats and seed settings")
	root.PersistentFlags().StringP("output", "o", "table", "output format: table, json")
	root.PersistentFlags().Bool("no-color", false, "disable coloured output")

	root.AddCommand(newRulesCmd())
	root.AddCommand(newAlertsCmd())
	root.AddCommand(newZonesCmd())
	root.AddCommand(newEventsCmd())
	return root
}

// Execute runs hwctl and prints a returned error to stderr.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		output.New(root.OutOrStdout(), root.ErrOrStderr()).Error("%v", err)
	}
	return err
}

func printer(cmd *cobra.Command) *output.Printer {
	return output.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}

// loadConfig returns a viper instance with the shared defaults, the optional
// --config file and the given flag bindings applied.
func loadConfig(cmd *cobra.Command, keys map[string]string) (*viper.Viper, error) {
	v := config.New()
	path, _ := cmd.Flags().GetString("config")
	if err := config.ReadFile(v, path); err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Flags(), keys); err != nil {
		return nil, err
	}
	return v, nil
}
