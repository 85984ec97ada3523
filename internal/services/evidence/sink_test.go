package evidence

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/models"
)

type fakeEncoder struct {
	delay time.Duration
	err   error
	exts  []string
	mu    sync.Mutex
}

func (e *fakeEncoder) Encode(af *models.AnnotatedFrame, ext string) ([]byte, error) {
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	e.mu.Lock()
	e.exts = append(e.exts, ext)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return []byte("img:" + ext), nil
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Put(_ context.Context, p string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[p] = data
	return p, nil
}

func (m *memStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func frame() *models.AnnotatedFrame {
	return &models.AnnotatedFrame{Frame: &models.Frame{Width: 1, Height: 1, Data: []byte{0, 0, 0}}}
}

func TestFilename(t *testing.T) {
	ts := time.Date(2024, 3, 7, 14, 5, 9, 0, time.Local)
	assert.Equal(t,
		filepath.Join("detected_faces", "2024-03-07_14-05-09_Alice_Smith_ID-_1.jpg"),
		Filename("detected_faces", ts, "Alice Smith (ID: 1)", "jpg"))
	assert.Equal(t, "2024-03-07_14-05-09_Unknown.png", filepath.Base(Filename("x", ts, "Unknown", ".png")))
	assert.Equal(t, "a_b_c", SanitizeLabel("a/b\\c"))
}

func TestSubmitIsWrittenByWorker(t *testing.T) {
	store := &memStore{}
	enc := &fakeEncoder{}
	s := NewSink(enc, []Store{store}, time.Second, zerolog.Nop())
	s.Start()

	require.True(t, s.Submit("out/a.jpg", frame()))
	require.True(t, s.Submit("out/b.png", frame()))

	require.Eventually(t, func() bool { return store.Len() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte("img:png"), store.files["out/b.png"])
	assert.True(t, s.Stop())
	assert.Equal(t, int64(2), s.Stats().Written)
}

func TestSubmitNeverBlocksOnSlowWriter(t *testing.T) {
	enc := &fakeEncoder{delay: 50 * time.Millisecond}
	s := NewSink(enc, []Store{&memStore{}}, 100*time.Millisecond, zerolog.Nop())
	s.Start()

	start := time.Now()
	for i := 0; i < 100; i++ {
		s.Submit("out/x.jpg", frame())
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Greater(t, s.Stats().Queued, 90)

	start = time.Now()
	assert.False(t, s.Stop(), "backlog cannot drain within the stop timeout")
	assert.Less(t, time.Since(start), time.Second)
}

func TestSubmitAfterStopIsDropped(t *testing.T) {
	store := &memStore{}
	s := NewSink(&fakeEncoder{}, []Store{store}, time.Second, zerolog.Nop())
	s.Start()
	require.True(t, s.Stop())

	assert.False(t, s.Submit("out/late.jpg", frame()))
	assert.Equal(t, int64(1), s.Stats().Dropped)
	assert.Equal(t, 0, store.Len())
}

func TestStopDrainsQueue(t *testing.T) {
	store := &memStore{}
	s := NewSink(&fakeEncoder{}, []Store{store}, 2*time.Second, zerolog.Nop())
	for i := 0; i < 5; i++ {
		s.Submit(filepath.Join("out", string(rune('a'+i))+".jpg"), frame())
	}
	s.Start()
	assert.True(t, s.Stop())
	assert.Equal(t, 5, store.Len())
}

func TestWriteFailuresAreAbsorbed(t *testing.T) {
	s := NewSink(&fakeEncoder{err: errors.New("bad frame")}, []Store{&memStore{}}, time.Second, zerolog.Nop())
	s.Start()
	s.Submit("out/a.jpg", frame())
	require.Eventually(t, func() bool { return s.Stats().Failed == 1 }, time.Second, time.Millisecond)

	store := &memStore{err: errors.New("disk full")}
	s2 := NewSink(&fakeEncoder{}, []Store{store}, time.Second, zerolog.Nop())
	s2.Start()
	s2.Submit("out/a.jpg", frame())
	require.Eventually(t, func() bool { return s2.Stats().Failed == 1 }, time.Second, time.Millisecond)

	assert.True(t, s.Stop())
	assert.True(t, s2.Stop())
}

func TestMirrorFailureDoesNotFailWrite(t *testing.T) {
	primary := &memStore{}
	s := NewSink(&fakeEncoder{}, []Store{primary, &memStore{err: errors.New("s3 down")}}, time.Second, zerolog.Nop())
	s.Start()
	s.Submit("out/a.jpg", frame())
	require.Eventually(t, func() bool { return s.Stats().Written == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int64(0), s.Stats().Failed)
	s.Stop()
}

func TestLocalStoreCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "deeper", "a.jpg")
	got, err := LocalStore{}.Put(context.Background(), p, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, p, got)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), data)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "detected_faces/a.jpg", ObjectKey("./detected_faces/a.jpg"))
	assert.Equal(t, "var/evidence/a.jpg", ObjectKey("/var/evidence/a.jpg"))
}

func TestLocalStoreKeepsCollidingEvidence(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	p := Filename(dir, ts, "Alice Smith (ID: 1)", "jpg")

	first, err := LocalStore{}.Put(context.Background(), p, []byte("lobby"))
	require.NoError(t, err)
	second, err := LocalStore{}.Put(context.Background(), p, []byte("lab"))
	require.NoError(t, err)

	assert.Equal(t, p, first)
	assert.Equal(t, filepath.Join(dir, "2024-05-01_09-30-00_Alice_Smith_ID-_1_2.jpg"), second)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("lobby"), data)
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, []byte("lab"), data)
}

func TestMirrorUsesPrimaryName(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(p, []byte("earlier"), 0o644))

	mirror := &memStore{}
	s := NewSink(&fakeEncoder{}, []Store{LocalStore{}, mirror}, time.Second, zerolog.Nop())
	s.Start()
	s.Submit(p, frame())
	require.Eventually(t, func() bool { return s.Stats().Written == 1 }, time.Second, time.Millisecond)
	s.Stop()

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	assert.Contains(t, mirror.files, filepath.Join(dir, "a_2.jpg"))
}
