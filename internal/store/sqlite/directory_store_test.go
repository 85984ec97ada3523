package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facegate-worker-go/internal/directory"
	"facegate-worker-go/internal/models"
)

func strPtr(s string) *string { return &s }

func seed(t *testing.T) *DirectoryStore {
	t.Helper()
	conn := openTestDB(t)
	s := NewDirectoryStore(conn, newTestWriter(t, conn))

	err := s.ReplaceAll(context.Background(), directory.Snapshot{
		Rooms: []models.Room{{ID: "1", Name: "Lab"}, {ID: "2", Name: "Office"}},
		Identities: []models.Identity{
			{ID: "7", DisplayName: "Zed Last", Department: "Sales", Embedding: []float32{0.5, -1.25}},
			{ID: "3", DisplayName: "Alice Smith", Department: "Engineering", Embedding: []float32{1, 2}},
		},
		Cameras: []models.Camera{
			{Address: "10.0.0.5", RoomID: strPtr("1")},
			{Address: "10.0.0.6"},
		},
		Rules: []models.AccessRule{
			{Department: "Engineering", RoomID: "1"},
			{Department: "Engineering", RoomID: "1"},
			{Department: "Sales", RoomID: "2"},
		},
	})
	require.NoError(t, err)
	return s
}

func TestIdentitiesKeepImportOrderAndEmbeddings(t *testing.T) {
	s := seed(t)
	ids, err := s.ListIdentities(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "7", ids[0].ID)
	assert.Equal(t, []float32{0.5, -1.25}, ids[0].Embedding)
	assert.Equal(t, "Engineering", ids[1].Department)
}

func TestRoomBinding(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	room, ok, err := s.RoomBoundTo(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", room)

	_, ok, err = s.RoomBoundTo(ctx, "10.0.0.6")
	require.NoError(t, err)
	assert.False(t, ok, "known camera without room")

	_, ok, err = s.RoomBoundTo(ctx, "10.9.9.9")
	require.NoError(t, err)
	assert.False(t, ok, "unknown camera")
}

func TestRulesFor(t *testing.T) {
	s := seed(t)
	rules, err := s.RulesFor(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"Engineering": {}}, rules)
}

func TestListRoomsAndCameras(t *testing.T) {
	s := seed(t)
	rooms, err := s.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Room{{ID: "1", Name: "Lab"}, {ID: "2", Name: "Office"}}, rooms)

	cams, err := s.ListCameras(context.Background())
	require.NoError(t, err)
	require.Len(t, cams, 2)
	require.NotNil(t, cams[0].RoomID)
	assert.Equal(t, "1", *cams[0].RoomID)
	assert.Nil(t, cams[1].RoomID)
}

func TestReplaceAllIsWholesale(t *testing.T) {
	s := seed(t)
	require.NoError(t, s.ReplaceAll(context.Background(), directory.Snapshot{
		Rooms: []models.Room{{ID: "9", Name: "Vault"}},
	}))

	ids, err := s.ListIdentities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
	rooms, _ := s.ListRooms(context.Background())
	assert.Len(t, rooms, 1)
}

func TestEmbeddingRoundTripRejectsBadBlob(t *testing.T) {
	_, err := decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
	v, err := decodeEmbedding(nil)
	require.NoError(t, err)
	assert.Empty(t, v)

	// 0x7fc00000 is a quiet NaN
	_, err = decodeEmbedding([]byte{0, 0, 0x80, 0x3f, 0, 0, 0xc0, 0x7f})
	assert.ErrorContains(t, err, "component 1 is not finite")
}
