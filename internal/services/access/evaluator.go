// Package access decides whether a recognized face may enter the room bound
// to the stream's camera, and suppresses repeat sightings.
package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"facegate-worker-go/internal/models"
)

// RoomPolicy is the part of the directory the evaluator needs
type RoomPolicy interface {
	RoomBoundTo(ctx context.Context, cameraAddress string) (string, bool, error)
	RulesFor(ctx context.Context, roomID string) (map[string]struct{}, error)
}

type Options struct {
	StreamID      string
	CameraAddress string
	Cooldown      time.Duration
}

// Decision is the result of one evaluation. Event is nil when suppressed.
type Decision struct {
	Outcome models.Decision
	Reason  string
	Event   *models.DetectionEvent
}

func (d Decision) Suppressed() bool {
	return d.Outcome == models.DecisionSuppressed
}

type cooldownKey struct {
	identity string
	location string
}

type Evaluator struct {
	policy RoomPolicy
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	lastSeen  map[cooldownKey]time.Time
	lastSweep time.Time

	now func() time.Time
}

func NewEvaluator(policy RoomPolicy, opts Options, logger zerolog.Logger) *Evaluator {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	return &Evaluator{
		policy:   policy,
		opts:     opts,
		logger:   logger.With().Str("component", "access").Logger(),
		lastSeen: make(map[cooldownKey]time.Time),
		now:      time.Now,
	}
}

// Evaluate decides access for label seen at location. A sighting of the same
// identity at the same location within the cooldown is suppressed entirely.
func (e *Evaluator) Evaluate(ctx context.Context, label models.Label, location string) Decision {
	now := e.now()
	key := cooldownKey{identity: label.Key(), location: location}

	if e.checkCooldown(key, now) {
		return Decision{Outcome: models.DecisionSuppressed}
	}

	ev := &models.DetectionEvent{
		ID:            uuid.NewString(),
		Timestamp:     now,
		StreamID:      e.opts.StreamID,
		CameraAddress: e.opts.CameraAddress,
		Location:      location,
		DisplayName:   label.Display,
	}
	if label.Known {
		ev.IdentityID = label.IdentityID
		ev.Department = label.Department
	}

	ev.Decision, ev.Reason = e.decide(ctx, label, ev)
	ev.Message = message(label, ev)

	e.updateCooldown(key, now)
	return Decision{Outcome: ev.Decision, Reason: ev.Reason, Event: ev}
}

func (e *Evaluator) decide(ctx context.Context, label models.Label, ev *models.DetectionEvent) (models.Decision, string) {
	roomID, bound, err := e.policy.RoomBoundTo(ctx, e.opts.CameraAddress)
	if err != nil {
		e.logger.Warn().Err(err).Str("camera", e.opts.CameraAddress).Msg("Room lookup failed, denying")
		return models.DecisionDenied, models.ReasonDirectoryError
	}
	if !bound {
		return models.DecisionDenied, models.ReasonUnboundCamera
	}
	ev.RoomID = roomID

	if !label.Known || label.Department == "" {
		return models.DecisionDenied, models.ReasonUnidentified
	}

	rules, err := e.policy.RulesFor(ctx, roomID)
	if err != nil {
		e.logger.Warn().Err(err).Str("room_id", roomID).Msg("Rule lookup failed, denying")
		return models.DecisionDenied, models.ReasonDirectoryError
	}
	if _, ok := rules[label.Department]; ok {
		return models.DecisionGranted, models.ReasonRuleMatched
	}
	return models.DecisionDenied, models.ReasonNoRule
}

func message(label models.Label, ev *models.DetectionEvent) string {
	msg := fmt.Sprintf("Detected '%s' in '%s'.", label.Display, ev.Location)
	switch {
	case ev.Decision == models.DecisionGranted:
		return msg + " Access granted."
	case ev.Reason == models.ReasonUnboundCamera:
		return msg + " Access denied (camera is not bound to a room)."
	case ev.Reason == models.ReasonDirectoryError:
		return msg + " Access denied (directory unavailable)."
	case label.Known:
		return msg + fmt.Sprintf(" Access to '%s' for department '%s' denied.", ev.RoomID, label.Department)
	default:
		return msg + " Access denied (unidentified)."
	}
}

// checkCooldown reports whether key was seen less than Cooldown ago.
// Expired entries are evicted on the way.
func (e *Evaluator) checkCooldown(key cooldownKey, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if now.Sub(e.lastSweep) >= e.opts.Cooldown {
		e.sweepLocked(now)
	}

	last, ok := e.lastSeen[key]
	if !ok {
		return false
	}
	if now.Sub(last) < e.opts.Cooldown {
		return true
	}
	delete(e.lastSeen, key)
	return false
}

func (e *Evaluator) updateCooldown(key cooldownKey, now time.Time) {
	e.mu.Lock()
	e.lastSeen[key] = now
	e.mu.Unlock()
}

// Sweep drops every expired cooldown entry
func (e *Evaluator) Sweep() {
	e.mu.Lock()
	e.sweepLocked(e.now())
	e.mu.Unlock()
}

func (e *Evaluator) sweepLocked(now time.Time) {
	for k, t := range e.lastSeen {
		if now.Sub(t) >= e.opts.Cooldown {
			delete(e.lastSeen, k)
		}
	}
	e.lastSweep = now
}

// Reset clears the cooldown cache
func (e *Evaluator) Reset() {
	e.mu.Lock()
	e.lastSeen = make(map[cooldownKey]time.Time)
	e.mu.Unlock()
}

// Pending returns the number of live cooldown entries
func (e *Evaluator) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lastSeen)
}
