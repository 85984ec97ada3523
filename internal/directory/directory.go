// Package directory defines the read-only view of identities, rooms, cameras
// and access rules that the pipeline depends on.
package directory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"facegate-worker-go/internal/models"
)

var ErrNotFound = errors.New("not found")

type Directory interface {
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	RoomBoundTo(ctx context.Context, cameraAddress string) (roomID string, ok bool, err error)
	RulesFor(ctx context.Context, roomID string) (map[string]struct{}, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
}

// Snapshot is a complete directory, as read from a JSON export or written
// by an import
type Snapshot struct {
	Identities []models.Identity
	Rooms      []models.Room
	Cameras    []models.Camera
	Rules      []models.AccessRule
}

// Memory is an in-process Directory. The JSON backend loads into one, and
// tests build one directly.
type Memory struct {
	mu         sync.RWMutex
	identities []models.Identity
	rooms      map[string]models.Room
	cameras    map[string]*string
	rules      map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[string]models.Room),
		cameras: make(map[string]*string),
		rules:   make(map[string]map[string]struct{}),
	}
}

// NewMemoryFrom builds a Memory holding snap
func NewMemoryFrom(snap Snapshot) *Memory {
	m := NewMemory()
	for _, id := range snap.Identities {
		m.AddIdentity(id)
	}
	for _, r := range snap.Rooms {
		m.AddRoom(r)
	}
	for _, c := range snap.Cameras {
		if c.RoomID == nil {
			m.Unbind(c.Address)
		} else {
			m.Bind(c.Address, *c.RoomID)
		}
	}
	for _, rule := range snap.Rules {
		m.Allow(rule.Department, rule.RoomID)
	}
	return m
}

// AddIdentity appends id; gallery order is insertion order
func (m *Memory) AddIdentity(id models.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities = append(m.identities, id)
}

func (m *Memory) AddRoom(r models.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = r
}

// Bind binds a camera to a room, replacing any previous binding
func (m *Memory) Bind(cameraAddress, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := roomID
	m.cameras[cameraAddress] = &id
}

// Unbind keeps the camera known but leaves it without a room
func (m *Memory) Unbind(cameraAddress string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameras[cameraAddress] = nil
}

func (m *Memory) Allow(department, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.rules[roomID]
	if !ok {
		set = make(map[string]struct{})
		m.rules[roomID] = set
	}
	set[department] = struct{}{}
}

func (m *Memory) Revoke(department, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules[roomID], department)
}

func (m *Memory) ListIdentities(context.Context) ([]models.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Identity(nil), m.identities...), nil
}

func (m *Memory) RoomBoundTo(_ context.Context, cameraAddress string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room := m.cameras[cameraAddress]
	if room == nil {
		return "", false, nil
	}
	return *room, true, nil
}

func (m *Memory) RulesFor(_ context.Context, roomID string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.rules[roomID]))
	for d := range m.rules[roomID] {
		out[d] = struct{}{}
	}
	return out, nil
}

func (m *Memory) ListRooms(context.Context) ([]models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListCameras(context.Context) ([]models.Camera, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Camera, 0, len(m.cameras))
	for addr, room := range m.cameras {
		c := models.Camera{Address: addr}
		if room != nil {
			id := *room
			c.RoomID = &id
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// Rules returns every access rule, sorted
func (m *Memory) Rules() []models.AccessRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.AccessRule
	for room, set := range m.rules {
		for dept := range set {
			out = append(out, models.AccessRule{Department: dept, RoomID: room})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoomID != out[j].RoomID {
			return out[i].RoomID < out[j].RoomID
		}
		return out[i].Department < out[j].Department
	})
	return out
}
