// Package replay runs recorded events through a fresh rule engine offline.
package replay

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/joshuaworth/hoistwaywatch/common/models"
	"github.com/joshuaworth/hoistwaywatch/rules/correlation"
	"github.com/joshuaworth/hoistwaywatch/rules/engine"
	"github.com/joshuaworth/hoistwaywatch/rules/ruleset"
)

const maxLineSize = 1 << 20

// LineError reports an event line that failed validation.
type LineError struct {
	Line int
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Result summarizes a replay.
type Result struct {
	Events     int
	Invalid    []LineError
	Alerts     []*models.Alert
	Suppressed int
}

// Replayer evaluates NDJSON events in file order. The engine clock follows
// event timestamps and never moves backwards, so freshness and cooldown
// behave as they did when the events were live.
type Replayer struct {
	engine *engine.Engine
	clock  *correlation.ManualClock
}

// New creates a replayer with an empty correlation store.
func New(rules *ruleset.RuleSet, logger *slog.Logger) *Replayer {
	clock := correlation.NewManualClock(time.Time{})
	store := correlation.NewStore(correlation.WithClock(clock.Now))
	return &Replayer{
		engine: engine.New(rules, store, engine.WithLogger(logger)),
		clock:  clock,
	}
}

// Evaluate advances the clock to ev and evaluates it.
func (r *Replayer) Evaluate(ev *models.Event) engine.Result {
	if ev.Timestamp.After(r.clock.Now()) {
		r.clock.Set(ev.Timestamp)
	}
	return r.engine.EvaluateDetailed(ev)
}

// Run replays every event line from in. Blank lines are ignored and invalid
// events are reported in Result.Invalid without stopping the replay.
func (r *Replayer) Run(in io.Reader) (*Result, error) {
	res := &Result{}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := models.ParseEvent(line)
		if err != nil {
			res.Invalid = append(res.Invalid, LineError{Line: lineNo, Err: err})
			continue
		}
		res.Events++
		out := r.Evaluate(ev)
		res.Alerts = append(res.Alerts, out.Alerts...)
		res.Suppressed += len(out.Suppressed)
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("read events: %w", err)
	}
	return res, nil
}
