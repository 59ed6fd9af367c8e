package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/user/censai/pkg/record"
)

func TestSnapshotOperations(t *testing.T) {
	baseline := TakeSnapshot([]RiskFinding{
		{ID: "f1", Severity: SeverityMedium}, // unchanged
		{ID: "f2", Severity: SeverityMedium}, // fixed in the new scan
		{ID: "f4", Severity: SeverityLow},    // escalated
	})
	current := TakeSnapshot([]RiskFinding{
		{ID: "f1", Severity: SeverityMedium},
		{ID: "f3", Severity: SeverityHigh},
		{ID: "f4", Severity: SeverityHigh},
	})

	d := CompareSnapshot(baseline, current)
	assert.Equal(t, []string{"f3"}, d.New)
	assert.Equal(t, []string{"f2"}, d.Resolved)
	assert.Equal(t, []SeverityChange{{ID: "f4", From: SeverityLow, To: SeverityHigh}}, d.Changed)
	assert.Equal(t, DeltaCounts{New: 1, Resolved: 1, Changed: 1}, d.Counts)
}

func TestCompareWithoutBaseline(t *testing.T) {
	d := CompareSnapshot(nil, Snapshot{"a": SeverityLow, "b": SeverityHigh})
	assert.Equal(t, []string{"a", "b"}, d.New)
	assert.Empty(t, d.Resolved)
	assert.Empty(t, d.Changed)
}

func TestDatasetKeyIsOrderInsensitive(t *testing.T) {
	a := []record.Record{
		{IP: "1.1.1.1", Port: 22, Product: "OpenSSH"},
		{IP: "2.2.2.2", Port: 80, Product: "nginx"},
	}
	b := []record.Record{a[1], a[0], {IP: "1.1.1.1", Port: 22, Product: "openssh"}}

	assert.Equal(t, DatasetKey(a), DatasetKey(b))
	assert.Len(t, DatasetKey(a), 40)
	assert.NotEqual(t, DatasetKey(a), DatasetKey(a[:1]))
	assert.Equal(t, DatasetKey(nil), DatasetKey([]record.Record{{Port: 22}}))
}

func TestMutesAnnotateWithoutDropping(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mutes := NewMuteList([]Mute{
		{ID: "active", Until: now.Add(time.Hour), Reason: "change window"},
		{ID: "expired", Until: now.Add(-time.Hour), Reason: "old"},
		{ID: "forever", Reason: "accepted risk"},
	})
	findings := []RiskFinding{{ID: "active"}, {ID: "expired"}, {ID: "forever"}, {ID: "other"}}
	ApplyMutes(findings, mutes, now)

	assert.Len(t, findings, 4)
	if assert.NotNil(t, findings[0].Muted) {
		assert.Equal(t, "change window", findings[0].Muted.Reason)
	}
	assert.Nil(t, findings[1].Muted)
	assert.NotNil(t, findings[2].Muted)
	assert.Nil(t, findings[3].Muted)
}
