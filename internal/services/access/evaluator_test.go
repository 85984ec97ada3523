package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/directory"
	"facegate-worker-go/internal/models"
)

const camAddr = "10.0.0.5"

var alice = models.Label{Display: "Alice (ID: 1)", IdentityID: "1", Department: "Engineering", Known: true}

func labDirectory(allow ...string) *directory.Memory {
	d := directory.NewMemory()
	d.AddRoom(models.Room{ID: "lab", Name: "Lab"})
	d.Bind(camAddr, "lab")
	for _, dept := range allow {
		d.Allow(dept, "lab")
	}
	return d
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newEvaluator(p RoomPolicy) (*Evaluator, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	e := NewEvaluator(p, Options{StreamID: "s1", CameraAddress: camAddr, Cooldown: 30 * time.Second}, zerolog.Nop())
	e.now = c.Now
	return e, c
}

func TestGranted(t *testing.T) {
	e, c := newEvaluator(labDirectory("Engineering"))

	d := e.Evaluate(context.Background(), alice, "Front door")
	require.NotNil(t, d.Event)
	assert.Equal(t, models.DecisionGranted, d.Outcome)
	assert.Equal(t, "lab", d.Event.RoomID)
	assert.Equal(t, "1", d.Event.IdentityID)
	assert.Equal(t, "Engineering", d.Event.Department)
	assert.Equal(t, c.t, d.Event.Timestamp)
	assert.NotEmpty(t, d.Event.ID)
	assert.Equal(t, "Detected 'Alice (ID: 1)' in 'Front door'. Access granted.", d.Event.Message)
}

func TestDeniedByRules(t *testing.T) {
	e, _ := newEvaluator(labDirectory("Sales"))

	d := e.Evaluate(context.Background(), alice, "Front door")
	assert.Equal(t, models.DecisionDenied, d.Outcome)
	assert.Equal(t, models.ReasonNoRule, d.Reason)
	assert.Equal(t, "Detected 'Alice (ID: 1)' in 'Front door'. Access to 'lab' for department 'Engineering' denied.", d.Event.Message)
}

func TestUnknownAlwaysDenied(t *testing.T) {
	e, _ := newEvaluator(labDirectory("Engineering", ""))

	d := e.Evaluate(context.Background(), models.UnknownLabel(), "Front door")
	assert.Equal(t, models.DecisionDenied, d.Outcome)
	assert.Equal(t, models.ReasonUnidentified, d.Reason)
	assert.Empty(t, d.Event.IdentityID)
	assert.Equal(t, "Detected 'Unknown' in 'Front door'. Access denied (unidentified).", d.Event.Message)
}

func TestUnboundCameraDeniedRegardlessOfRules(t *testing.T) {
	dir := labDirectory("Engineering")
	dir.Unbind(camAddr)
	e, c := newEvaluator(dir)

	for _, label := range []models.Label{alice, models.UnknownLabel()} {
		d := e.Evaluate(context.Background(), label, "Front door")
		assert.Equal(t, models.DecisionDenied, d.Outcome)
		assert.Equal(t, models.ReasonUnboundCamera, d.Reason)
		assert.Empty(t, d.Event.RoomID)
		c.Advance(time.Second)
	}
}

type failingPolicy struct{}

func (failingPolicy) RoomBoundTo(context.Context, string) (string, bool, error) {
	return "", false, errors.New("database is locked")
}

func (failingPolicy) RulesFor(context.Context, string) (map[string]struct{}, error) {
	return nil, errors.New("database is locked")
}

func TestDirectoryErrorIsDenied(t *testing.T) {
	e, _ := newEvaluator(failingPolicy{})
	d := e.Evaluate(context.Background(), alice, "Front door")
	assert.Equal(t, models.DecisionDenied, d.Outcome)
	assert.Equal(t, models.ReasonDirectoryError, d.Reason)
}

func TestCooldownSuppressesRepeats(t *testing.T) {
	e, c := newEvaluator(labDirectory("Engineering"))
	ctx := context.Background()

	first := e.Evaluate(ctx, alice, "Front door")
	require.False(t, first.Suppressed())

	c.Advance(29 * time.Second)
	again := e.Evaluate(ctx, alice, "Front door")
	assert.True(t, again.Suppressed())
	assert.Nil(t, again.Event)

	other := e.Evaluate(ctx, alice, "Back door")
	assert.False(t, other.Suppressed(), "cooldown is per location")

	c.Advance(time.Second)
	after := e.Evaluate(ctx, alice, "Front door")
	assert.False(t, after.Suppressed(), "30s after the first event the key is free again")
}

func TestScenarioDTenCyclesOneEvent(t *testing.T) {
	e, c := newEvaluator(labDirectory("Engineering"))

	events := 0
	for i := 0; i < 10; i++ {
		if d := e.Evaluate(context.Background(), alice, "Front door"); d.Event != nil {
			events++
		}
		c.Advance(2 * time.Second)
	}
	assert.Equal(t, 1, events)
}

func TestCooldownInvariantOverLongRun(t *testing.T) {
	e, c := newEvaluator(labDirectory("Engineering"))
	labels := []models.Label{alice, models.UnknownLabel()}

	last := map[string]time.Time{}
	for i := 0; i < 500; i++ {
		label := labels[i%2]
		d := e.Evaluate(context.Background(), label, "Front door")
		if d.Event != nil {
			key := label.Key()
			if prev, ok := last[key]; ok {
				assert.GreaterOrEqual(t, d.Event.Timestamp.Sub(prev), 30*time.Second)
			}
			last[key] = d.Event.Timestamp
		}
		c.Advance(700 * time.Millisecond)
	}
}

func TestDecisionDeterminism(t *testing.T) {
	dir := labDirectory("Engineering")
	a, _ := newEvaluator(dir)
	b, _ := newEvaluator(dir)

	for _, label := range []models.Label{alice, models.UnknownLabel()} {
		da := a.Evaluate(context.Background(), label, "Front door")
		db := b.Evaluate(context.Background(), label, "Front door")
		assert.Equal(t, da.Outcome, db.Outcome)
		assert.Equal(t, da.Reason, db.Reason)
		assert.Equal(t, da.Event.Message, db.Event.Message)
	}
}

func TestResetClearsCooldown(t *testing.T) {
	e, _ := newEvaluator(labDirectory("Engineering"))
	_ = e.Evaluate(context.Background(), alice, "Front door")
	assert.Equal(t, 1, e.Pending())

	e.Reset()
	assert.Equal(t, 0, e.Pending())
	assert.False(t, e.Evaluate(context.Background(), alice, "Front door").Suppressed())
}

func TestSweepEvictsExpired(t *testing.T) {
	e, c := newEvaluator(labDirectory("Engineering"))
	_ = e.Evaluate(context.Background(), alice, "Front door")
	_ = e.Evaluate(context.Background(), alice, "Back door")
	c.Advance(31 * time.Second)
	e.Sweep()
	assert.Equal(t, 0, e.Pending())
}
