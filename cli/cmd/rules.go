package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshuaworth/hoistwaywatch/cli/internal/replay"
	"github.com/joshuaworth/hoistwaywatch/cli/pkg/output"
	"github.com/joshuaworth/hoistwaywatch/common/logging"
	"github.com/joshuaworth/hoistwaywatch/common/models"
	"github.com/joshuaworth/hoistwaywatch/rules/ruleset"
)

func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate and test hazard rules",
	}

	validateCmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Load a rules file and report its rules",
		Long: `Load a rules file the way the rules service does and list the active
rules. Structurally malformed entries are skipped with a warning; with
--strict they fail the command.`,
		Args: cobra.ExactArgs(1),
		RunE: runRulesValidate,
	}
	validateCmd.Flags().Bool("strict", false, "treat skipped entries as errors")

	testCmd := &cobra.Command{
		Use:   "test RULES EVENTS",
		Short: "Replay NDJSON events through the rules and print the alerts",
		Long: `Replay recorded events through a fresh rule engine. EVENTS is an NDJSON
file of sensor events, or - for stdin. The engine clock follows the event
timestamps, so correlation windows and cooldowns behave as they did live.`,
		Example: `  hwctl rules test configs/rules.yaml events.ndjson
  cat events.ndjson | hwctl rules test configs/rules.yaml - -o json`,
		Args: cobra.ExactArgs(2),
		RunE: runRulesTest,
	}
	testCmd.Flags().Bool("strict", false, "treat skipped entries as errors")

	rulesCmd.AddCommand(validateCmd, testCmd)
	return rulesCmd
}

func loadRules(cmd *cobra.Command, path string) (*ruleset.RuleSet, error) {
	strict, _ := cmd.Flags().GetBool("strict")
	rs, err := ruleset.Load(path, ruleset.WithStrict(strict), ruleset.WithLogger(logging.Discard().Logger))
	if err != nil {
		return nil, err
	}
	return rs, nil
}

type ruleSummary struct {
	ID          string          `json:"id"`
	EventType   string          `json:"event_type"`
	Filters     []string        `json:"filters"`
	Severity    models.Severity `json:"severity"`
	HazardScore float64         `json:"hazard_score"`
	Cooldown    float64         `json:"cooldown_s"`
	Scope       string          `json:"cooldown_scope"`
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	p := printer(cmd)
	rs, err := loadRules(cmd, args[0])
	if err != nil {
		return err
	}

	summaries := make([]ruleSummary, 0, rs.Len())
	for _, r := range rs.Rules {
		filters := make([]string, 0, len(r.Filters))
		for _, f := range r.Filters {
			filters = append(filters, describeFilter(f))
		}
		summaries = append(summaries, ruleSummary{
			ID:          r.ID,
			EventType:   string(r.EventType),
			Filters:     filters,
			Severity:    r.Then.Severity,
			HazardScore: r.Then.HazardScore,
			Cooldown:    r.Then.Cooldown.Seconds(),
			Scope:       string(r.Then.CooldownScope),
		})
	}

	if jsonOutput(cmd) {
		skipped := make([]string, 0, len(rs.Skipped))
		for _, s := range rs.Skipped {
			skipped = append(skipped, s.String())
		}
		return p.JSON(map[string]any{
			"version": rs.Version,
			"rules":   summaries,
			"skipped": skipped,
		})
	}

	table := output.NewTable([]string{"ID", "EVENT TYPE", "WHEN", "SEVERITY", "SCORE", "COOLDOWN"})
	for _, s := range summaries {
		cooldown := "-"
		if s.Cooldown > 0 {
			cooldown = fmt.Sprintf("%gs/%s", s.Cooldown, s.Scope)
		}
		table.AddRow([]string{
			s.ID,
			s.EventType,
			strings.Join(s.Filters, ", "),
			output.Severity(string(s.Severity)),
			strconv.FormatFloat(s.HazardScore, 'f', -1, 64),
			cooldown,
		})
	}
	table.Render(p.Out)
	for _, s := range rs.Skipped {
		p.Warn("skipped %s", s)
	}
	p.Success("%s: %d rules loaded, %d skipped", args[0], rs.Len(), len(rs.Skipped))
	return nil
}

func describeFilter(f ruleset.Filter) string {
	switch f.Kind {
	case ruleset.FilterExact:
		return fmt.Sprintf("%s=%s", f.Field, f.Equals)
	case ruleset.FilterSetMembership:
		vals := make([]string, 0, len(f.OneOf))
		for _, v := range f.OneOf {
			vals = append(vals, v.String())
		}
		return fmt.Sprintf("%s in [%s]", f.Field, strings.Join(vals, " "))
	case ruleset.FilterNumericThreshold:
		return fmt.Sprintf("%s>=%g", f.Field, f.Min)
	case ruleset.FilterTemporalCorrelation:
		if f.Recent == nil {
			return f.Kind.String()
		}
		if f.Recent.ZoneID != "" {
			return fmt.Sprintf("recent %s in %s within %gs", f.Recent.EventType, f.Recent.ZoneID, f.Recent.Within.Seconds())
		}
		return fmt.Sprintf("recent %s within %gs", f.Recent.EventType, f.Recent.Within.Seconds())
	default:
		return f.Kind.String()
	}
}

func runRulesTest(cmd *cobra.Command, args []string) error {
	p := printer(cmd)
	rs, err := loadRules(cmd, args[0])
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return fmt.Errorf("open events: %w", err)
		}
		defer f.Close()
		in = f
	}

	res, err := replay.New(rs, logging.Discard().Logger).Run(in)
	if err != nil {
		return err
	}

	// Diagnostics go to stderr so JSON output stays a clean NDJSON stream.
	diag := output.New(p.Err, p.Err)
	for _, le := range res.Invalid {
		diag.Warn("%s", le)
	}

	if jsonOutput(cmd) {
		for _, a := range res.Alerts {
			line, err := a.MarshalLine()
			if err != nil {
				return err
			}
			if err := p.Line(line); err != nil {
				return err
			}
		}
	} else {
		table := output.NewTable([]string{"TS", "RULE", "SEVERITY", "SCORE", "TRIGGER", "WHY"})
		for _, a := range res.Alerts {
			table.AddRow([]string{
				a.Timestamp.UTC().Format("15:04:05.000"),
				a.Explanation.RuleID,
				output.Severity(string(a.Severity)),
				strconv.FormatFloat(a.HazardScore, 'f', -1, 64),
				strings.Join(a.Trigger.EventIDs, ","),
				a.Explanation.Why,
			})
		}
		table.Render(p.Out)
	}

	diag.Info("%d events, %d invalid, %d alerts, %d suppressed by cooldown",
		res.Events, len(res.Invalid), len(res.Alerts), res.Suppressed)
	return nil
}
