package ruleset

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

// ErrInvalidConfig is wrapped by every fatal rules configuration error.
var ErrInvalidConfig = errors.New("invalid rules config")

// ConfigError describes one fatal problem in a rules document.
type ConfigError struct {
	Index  int // rule position, -1 for document-level problems
	RuleID string
	Field  string
	Line   int
	Msg    string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Index >= 0 {
		fmt.Fprintf(&b, "rules[%d]", e.Index)
		if e.RuleID != "" {
			fmt.Fprintf(&b, " (%s)", e.RuleID)
		}
	} else {
		b.WriteString("document")
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Msg)
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

type loadOptions struct {
	strict bool
	logger *slog.Logger
}

// Option configures loading.
type Option func(*loadOptions)

// WithStrict makes structurally malformed entries fatal instead of skipped.
func WithStrict(strict bool) Option {
	return func(o *loadOptions) { o.strict = strict }
}

// WithLogger sets the logger that receives skipped-entry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(o *loadOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Load reads and validates the rules file at path.
func Load(path string, opts ...Option) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rs, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// Parse validates a rules document. Structurally malformed entries are
// skipped and reported in RuleSet.Skipped; every semantic problem is
// collected and returned joined, with no RuleSet.
func Parse(data []byte, opts ...Option) (*RuleSet, error) {
	o := loadOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Index: -1, Msg: fmt.Sprintf("parse yaml: %v", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ConfigError{Index: -1, Msg: "rules config is empty"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Index: -1, Line: root.Line, Msg: "rules config must be a mapping"}
	}

	p := &parser{opts: o, seen: make(map[string]int)}
	rs := &RuleSet{Version: SupportedVersion}

	var rulesNode *yaml.Node
	for _, kv := range pairs(root) {
		switch kv.key.Value {
		case "version":
			v, ok := scalarNumber(kv.value)
			if !ok || v != SupportedVersion {
				p.fail(-1, "", "version", kv.value.Line, fmt.Sprintf("unsupported version %q, want %d", kv.value.Value, SupportedVersion))
			}
		case "rules":
			rulesNode = kv.value
		default:
			if o.strict {
				p.fail(-1, "", kv.key.Value, kv.key.Line, "unknown top-level key")
				continue
			}
			o.logger.Warn("ignoring unknown top-level key", "key", kv.key.Value, "line", kv.key.Line)
		}
	}

	if rulesNode != nil && !isNull(rulesNode) {
		if rulesNode.Kind != yaml.SequenceNode {
			p.fail(-1, "", "rules", rulesNode.Line, "must be a list")
		} else {
			for i, entry := range rulesNode.Content {
				rule, skip := p.parseRule(i, deref(entry))
				if skip != nil {
					p.skip(rs, *skip)
					continue
				}
				if rule != nil {
					rs.Rules = append(rs.Rules, rule)
				}
			}
		}
	}

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	return rs, nil
}

type parser struct {
	opts loadOptions
	errs []error
	seen map[string]int
}

func (p *parser) fail(index int, id, field string, line int, msg string) {
	p.errs = append(p.errs, &ConfigError{Index: index, RuleID: id, Field: field, Line: line, Msg: msg})
}

func (p *parser) skip(rs *RuleSet, s SkippedEntry) {
	if p.opts.strict {
		p.fail(s.Index, s.ID, "", s.Line, s.Reason)
		return
	}
	p.opts.logger.Warn("skipping malformed rule entry",
		"index", s.Index,
		"rule_id", s.ID,
		"line", s.Line,
		"reason", s.Reason)
	rs.Skipped = append(rs.Skipped, s)
}

// parseRule returns the rule, or a skip record for structurally malformed
// entries. Semantic errors are recorded on the parser and yield neither.
func (p *parser) parseRule(index int, node *yaml.Node) (*Rule, *SkippedEntry) {
	skip := func(id, reason string) (*Rule, *SkippedEntry) {
		return nil, &SkippedEntry{Index: index, ID: id, Line: node.Line, Reason: reason}
	}

	if node.Kind != yaml.MappingNode {
		return skip("", "entry is not a mapping")
	}
	fields := make(map[string]*yaml.Node)
	for _, kv := range pairs(node) {
		fields[kv.key.Value] = kv.value
	}

	idNode := fields["id"]
	id, ok := ruleID(idNode)
	if !ok {
		return skip("", "id is missing or not a non-empty string or number")
	}

	when, ok := fields["when"]
	if !ok || when.Kind != yaml.MappingNode {
		return skip(id, "when must be a mapping")
	}
	then, hasThen := fields["then"]
	if hasThen && !isNull(then) && then.Kind != yaml.MappingNode {
		return skip(id, "then must be a mapping")
	}
	whenFields := make(map[string]*yaml.Node)
	for _, kv := range pairs(when) {
		whenFields[kv.key.Value] = kv.value
	}
	if et, ok := whenFields["event_type"]; !ok || isNull(et) {
		return skip(id, "when.event_type is required")
	}

	for _, kv := range pairs(node) {
		switch kv.key.Value {
		case "id", "when", "then":
		default:
			p.fail(index, id, kv.key.Value, kv.key.Line, "unknown rule key")
		}
	}

	if first, dup := p.seen[id]; dup {
		p.fail(index, id, "id", idNode.Line, fmt.Sprintf("duplicate rule id, first defined at rules[%d]", first))
	} else {
		p.seen[id] = index
	}

	before := len(p.errs)
	rule := &Rule{ID: id, Line: node.Line}
	p.parseWhen(index, rule, when)
	rule.Then = p.parseThen(index, id, then)
	if len(p.errs) > before {
		return nil, nil
	}
	return rule, nil
}

func (p *parser) parseWhen(index int, rule *Rule, when *yaml.Node) {
	var recent []Filter
	for _, kv := range pairs(when) {
		key, v := kv.key.Value, kv.value
		field := "when." + key
		switch {
		case key == "event_type":
			t, ok := p.eventType(index, rule.ID, field, v)
			if ok {
				rule.EventType = t
			}
		case key == "zone_id":
			zone, ok := scalarString(v)
			if !ok {
				p.fail(index, rule.ID, field, v.Line, "must be a string")
				continue
			}
			rule.Filters = append(rule.Filters, Filter{Kind: FilterExact, Field: "zone_id", Equals: models.String(zone)})
		case key == "status_in":
			values, ok := scalarList(v)
			if !ok {
				p.fail(index, rule.ID, field, v.Line, "must be a list of scalars")
				continue
			}
			rule.Filters = append(rule.Filters, Filter{Kind: FilterSetMembership, Field: "status", OneOf: values})
		case key == "and_recent":
			recent = p.parseRecent(index, rule.ID, v)
		case strings.HasSuffix(key, "_gte") && len(key) > len("_gte"):
			bound, ok := scalarNumber(v)
			if !ok {
				p.fail(index, rule.ID, field, v.Line, fmt.Sprintf("must be a number, got %q", v.Value))
				continue
			}
			rule.Filters = append(rule.Filters, Filter{Kind: FilterNumericThreshold, Field: strings.TrimSuffix(key, "_gte"), Min: bound})
		default:
			p.fail(index, rule.ID, field, kv.key.Line, "unknown filter")
		}
	}
	rule.Filters = append(rule.Filters, recent...)
}

func (p *parser) parseRecent(index int, id string, node *yaml.Node) []Filter {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		p.fail(index, id, "when.and_recent", node.Line, "must be a list")
		return nil
	}

	var out []Filter
	for i, item := range node.Content {
		prefix := fmt.Sprintf("when.and_recent[%d]", i)
		if item.Kind != yaml.MappingNode {
			p.fail(index, id, prefix, item.Line, "must be a mapping")
			continue
		}
		cond := RecentCondition{}
		hasType, hasWithin, valid := false, false, true
		for _, kv := range pairs(item) {
			field := prefix + "." + kv.key.Value
			switch kv.key.Value {
			case "event_type":
				hasType = true
				t, ok := p.eventType(index, id, field, kv.value)
				if !ok {
					valid = false
				}
				cond.EventType = t
			case "zone_id":
				if isNull(kv.value) {
					continue
				}
				zone, ok := scalarString(kv.value)
				if !ok {
					p.fail(index, id, field, kv.value.Line, "must be a string")
					valid = false
					continue
				}
				cond.ZoneID = zone
			case "within_sec":
				hasWithin = true
				within, ok := scalarSeconds(kv.value)
				if !ok {
					p.fail(index, id, field, kv.value.Line, fmt.Sprintf("must be a non-negative number below %g", maxSeconds))
					valid = false
					continue
				}
				cond.Within = within
			default:
				p.fail(index, id, field, kv.key.Line, "unknown key")
				valid = false
			}
		}
		if !hasType {
			p.fail(index, id, prefix+".event_type", item.Line, "required")
			valid = false
		}
		if !hasWithin {
			p.fail(index, id, prefix+".within_sec", item.Line, "required")
			valid = false
		}
		if valid {
			c := cond
			out = append(out, Filter{Kind: FilterTemporalCorrelation, Recent: &c})
		}
	}
	return out
}

func (p *parser) parseThen(index int, id string, then *yaml.Node) Consequence {
	c := Consequence{
		Severity:      DefaultSeverity,
		HazardScore:   DefaultHazardScore,
		Summary:       id,
		CooldownScope: CooldownPerRule,
	}
	if then == nil || isNull(then) {
		return c
	}

	for _, kv := range pairs(then) {
		key, v := kv.key.Value, kv.value
		field := "then." + key
		switch key {
		case "severity":
			s, ok := scalarString(v)
			if !ok || !models.Severity(s).IsValid() {
				p.fail(index, id, field, v.Line, fmt.Sprintf("must be one of info, warning, critical, got %q", v.Value))
				continue
			}
			c.Severity = models.Severity(s)
		case "hazard_score":
			score, ok := scalarNumber(v)
			if !ok || !models.ValidHazardScore(score) {
				p.fail(index, id, field, v.Line, fmt.Sprintf("must be a number within [0,100], got %q", v.Value))
				continue
			}
			c.HazardScore = score
		case "summary":
			s, ok := scalarText(v)
			if !ok {
				p.fail(index, id, field, v.Line, "must be a scalar")
				continue
			}
			c.Summary = s
		case "recommended_action":
			if isNull(v) {
				continue
			}
			s, ok := scalarText(v)
			if !ok {
				p.fail(index, id, field, v.Line, "must be a scalar")
				continue
			}
			c.RecommendedAction = s
		case "cooldown_sec":
			cooldown, ok := scalarSeconds(v)
			if !ok {
				p.fail(index, id, field, v.Line, fmt.Sprintf("must be a non-negative number below %g, got %q", maxSeconds, v.Value))
				continue
			}
			c.Cooldown = cooldown
		case "cooldown_scope":
			s, ok := scalarString(v)
			if !ok || !CooldownScope(s).IsValid() {
				p.fail(index, id, field, v.Line, fmt.Sprintf("must be one of rule, zone, camera, got %q", v.Value))
				continue
			}
			c.CooldownScope = CooldownScope(s)
		default:
			p.fail(index, id, field, kv.key.Line, "unknown consequence key")
		}
	}
	return c
}

func (p *parser) eventType(index int, id, field string, v *yaml.Node) (models.EventType, bool) {
	s, ok := scalarString(v)
	if !ok {
		p.fail(index, id, field, v.Line, "must be a string")
		return "", false
	}
	t := models.EventType(s)
	if !t.IsValid() {
		p.fail(index, id, field, v.Line, fmt.Sprintf("unknown event type %q", s))
		return "", false
	}
	return t, true
}

type keyValue struct {
	key, value *yaml.Node
}

func pairs(node *yaml.Node) []keyValue {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]keyValue, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		out = append(out, keyValue{key: node.Content[i], value: deref(node.Content[i+1])})
	}
	return out
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func scalarString(n *yaml.Node) (string, bool) {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != "!!str" {
		return "", false
	}
	return n.Value, true
}

// scalarText accepts any non-null scalar and returns its literal text.
func scalarText(n *yaml.Node) (string, bool) {
	if n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return "", false
	}
	return n.Value, true
}

func scalarNumber(n *yaml.Node) (float64, bool) {
	if tag := n.ShortTag(); n.Kind != yaml.ScalarNode || (tag != "!!int" && tag != "!!float") {
		return 0, false
	}
	var f float64
	if err := n.Decode(&f); err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func scalarList(n *yaml.Node) ([]models.Value, bool) {
	if n.Kind != yaml.SequenceNode {
		return nil, false
	}
	out := make([]models.Value, 0, len(n.Content))
	for _, item := range n.Content {
		item = deref(item)
		if item.Kind != yaml.ScalarNode {
			return nil, false
		}
		var raw any
		if err := item.Decode(&raw); err != nil {
			return nil, false
		}
		v, err := models.ValueOf(raw)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// maxSeconds is the first second count time.Duration cannot hold.
var maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// scalarSeconds decodes a non-negative second count that fits a time.Duration.
func scalarSeconds(n *yaml.Node) (time.Duration, bool) {
	sec, ok := scalarNumber(n)
	if !ok || sec < 0 {
		return 0, false
	}
	ns := sec * float64(time.Second)
	if ns >= float64(math.MaxInt64) {
		return 0, false
	}
	return time.Duration(ns), true
}

// ruleID accepts string and numeric ids; numbers keep their YAML spelling.
func ruleID(n *yaml.Node) (string, bool) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", false
	}
	switch n.ShortTag() {
	case "!!str", "!!int", "!!float":
	default:
		return "", false
	}
	id := strings.TrimSpace(n.Value)
	return id, id != ""
}
