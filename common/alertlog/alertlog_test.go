package alertlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuaworth/hoistwaywatch/common/models"
)

func testAlert(id string) *models.Alert {
	return &models.Alert{
		SchemaVersion: models.SchemaVersion,
		AlertID:       id,
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Severity:      models.SeverityWarning,
		HazardScore:   60,
		Summary:       "Person near car path",
		Explanation:   models.AlertExplanation{RuleID: "R100", Why: "matched R100", Inputs: []models.ExplanationInput{}},
		Trigger:       models.AlertTrigger{EventIDs: []string{"evt_2", "evt_1"}},
	}
}

func line(t *testing.T, a *models.Alert) []byte {
	t.Helper()
	data, err := a.MarshalLine()
	require.NoError(t, err)
	return data
}

func TestLog_AppendSyncsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.ndjson")
	l, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())

	require.NoError(t, l.Append(line(t, testAlert("al_1"))))
	require.NoError(t, l.Append(line(t, testAlert("al_2"))))
	require.NoError(t, l.Close())

	res, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 2)
	assert.Equal(t, "al_1", res.Alerts[0].AlertID)
	assert.Equal(t, []string{"evt_2", "evt_1"}, res.Alerts[1].Trigger.EventIDs)
	assert.Equal(t, 1, res.Skipped)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestOpen_HeaderOnlyWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "alerts.ndjson")
	now := func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	log, err := Open(path, now)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	log, err = Open(path, now)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"ts":"2026-03-01T00:00:00Z","note":"hoistwaywatch alerts log start"}`+"\n", string(data))
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("", nil)
	assert.Error(t, err)

	dir := t.TempDir()
	_, err = Open(dir, nil)
	assert.Error(t, err)
}

func TestLog_RejectsMultiLine(t *testing.T) {
	log, err := Open(filepath.Join(t.TempDir(), "a.ndjson"), nil)
	require.NoError(t, err)
	defer log.Close()

	assert.Error(t, log.Append([]byte("a\nb")))
}

func TestRead_SkipsNonAlertLines(t *testing.T) {
	a := testAlert("al_1")
	input := strings.Join([]string{
		`{"ts":"2026-03-01T00:00:00Z","note":"hoistwaywatch alerts log start"}`,
		"",
		string(line(t, a)),
		"garbage",
		`{"alert_id":""}`,
	}, "\n")

	res, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "al_1", res.Alerts[0].AlertID)
	assert.Equal(t, 3, res.Skipped)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.ndjson"))
	assert.Error(t, err)
}
