package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joshuaworth/hoistwaywatch/cli/pkg/output"
	"github.com/joshuaworth/hoistwaywatch/common/alertlog"
	"github.com/joshuaworth/hoistwaywatch/common/models"
)

func newAlertsCmd() *cobra.Command {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect alert logs written by the alert sink",
	}

	showCmd := &cobra.Command{
		Use:   "show LOG",
		Short: "Show alerts from an NDJSON alert log",
		Long: `Read an alert log and print its alerts in file order. Header records and
lines that are not valid alerts are skipped and counted.`,
		Example: `  hwctl alerts show alerts.ndjson --severity critical
  hwctl alerts show alerts.ndjson --rule R100 --limit 5 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: runAlertsShow,
	}
	showCmd.Flags().String("severity", "", "only show alerts of this severity (info, warning, critical)")
	showCmd.Flags().String("rule", "", "only show alerts fired by this rule id")
	showCmd.Flags().Int("limit", 0, "show only the most recent N matching alerts (0 for all)")

	alertsCmd.AddCommand(showCmd)
	return alertsCmd
}

func runAlertsShow(cmd *cobra.Command, args []string) error {
	severity, _ := cmd.Flags().GetString("severity")
	rule, _ := cmd.Flags().GetString("rule")
	limit, _ := cmd.Flags().GetInt("limit")

	if severity != "" && !models.Severity(severity).IsValid() {
		return fmt.Errorf("invalid severity %q: use info, warning or critical", severity)
	}
	if limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}

	res, err := alertlog.ReadFile(args[0])
	if err != nil {
		return err
	}

	alerts := filterAlerts(res.Alerts, models.Severity(severity), rule, limit)

	p := printer(cmd)
	if jsonOutput(cmd) {
		for _, a := range alerts {
			line, err := a.MarshalLine()
			if err != nil {
				return err
			}
			if err := p.Line(line); err != nil {
				return err
			}
		}
		return nil
	}

	table := output.NewTable([]string{"TS", "ALERT", "RULE", "SEVERITY", "SCORE", "CAMERA", "SUMMARY"})
	for _, a := range alerts {
		table.AddRow([]string{
			a.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			a.AlertID,
			a.Explanation.RuleID,
			output.Severity(string(a.Severity)),
			strconv.FormatFloat(a.HazardScore, 'f', -1, 64),
			a.CameraID,
			a.Summary,
		})
	}
	table.Render(p.Out)
	p.Info("%d alerts shown, %d total, %d lines skipped", len(alerts), len(res.Alerts), res.Skipped)
	return nil
}

// filterAlerts keeps file order and, with limit, the last limit matches.
func filterAlerts(alerts []*models.Alert, severity models.Severity, rule string, limit int) []*models.Alert {
	out := make([]*models.Alert, 0, len(alerts))
	for _, a := range alerts {
		if severity != "" && a.Severity != severity {
			continue
		}
		if rule != "" && a.Explanation.RuleID != rule {
			continue
		}
		out = append(out, a)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
