package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TaiBIF/camera-trap/clients"
)

type stubPlaylistAPI struct {
	pages       []*clients.PlaylistPage
	listCalls   int
	createCalls int
	createName  string
	createErr   error
	insertErr   error
	inserted    [][2]string
}

func (s *stubPlaylistAPI) ListOwnPlaylists(ctx context.Context, pageToken string, maxResults int) (*clients.PlaylistPage, error) {
	if s.listCalls >= len(s.pages) {
		panic("list called past the last page")
	}
	page := s.pages[s.listCalls]
	s.listCalls++
	return page, nil
}

func (s *stubPlaylistAPI) CreatePlaylist(ctx context.Context, name string) (string, error) {
	s.createCalls++
	s.createName = name
	if s.createErr != nil {
		return "", s.createErr
	}
	return "created-id", nil
}

func (s *stubPlaylistAPI) InsertPlaylistItem(ctx context.Context, playlistID, videoID string) error {
	s.inserted = append(s.inserted, [2]string{playlistID, videoID})
	return s.insertErr
}

func TestResolvePlaylistFindsExisting(t *testing.T) {
	require := require.New(t)

	api := &stubPlaylistAPI{pages: []*clients.PlaylistPage{{
		Items: []clients.Playlist{
			{ID: "pl-1", Title: "OtherCam"},
			{ID: "pl-2", Title: "Cam1"},
		},
	}}}
	id, err := ResolvePlaylist(context.Background(), api, "Cam1")
	require.NoError(err)
	require.Equal("pl-2", id)
	require.Zero(api.createCalls)

	// Resolving again yields the same playlist, never a second copy.
	api.listCalls = 0
	again, err := ResolvePlaylist(context.Background(), api, "Cam1")
	require.NoError(err)
	require.Equal(id, again)
	require.Zero(api.createCalls)
}

func TestResolvePlaylistPaginates(t *testing.T) {
	require := require.New(t)

	api := &stubPlaylistAPI{pages: []*clients.PlaylistPage{
		{Items: []clients.Playlist{{ID: "pl-1", Title: "A"}}, NextPageToken: "page2"},
		{Items: []clients.Playlist{{ID: "pl-2", Title: "B"}}, NextPageToken: "page3"},
		{Items: []clients.Playlist{{ID: "pl-3", Title: "Cam1"}}},
	}}
	id, err := ResolvePlaylist(context.Background(), api, "Cam1")
	require.NoError(err)
	require.Equal("pl-3", id)
	require.Equal(3, api.listCalls)
	require.Zero(api.createCalls)
}

func TestResolvePlaylistCreatesWhenMissing(t *testing.T) {
	require := require.New(t)

	api := &stubPlaylistAPI{pages: []*clients.PlaylistPage{
		{Items: []clients.Playlist{{ID: "pl-1", Title: "A"}}, NextPageToken: "page2"},
		{Items: []clients.Playlist{{ID: "pl-2", Title: "B"}}},
	}}
	id, err := ResolvePlaylist(context.Background(), api, "Cam9")
	require.NoError(err)
	require.Equal("created-id", id)
	require.Equal(1, api.createCalls)
	require.Equal("Cam9", api.createName)
}

func TestResolvePlaylistTitleMatchIsExact(t *testing.T) {
	require := require.New(t)

	// Case and whitespace variants are distinct playlists.
	api := &stubPlaylistAPI{pages: []*clients.PlaylistPage{{
		Items: []clients.Playlist{
			{ID: "pl-1", Title: "cam1"},
			{ID: "pl-2", Title: "Cam1 "},
		},
	}}}
	id, err := ResolvePlaylist(context.Background(), api, "Cam1")
	require.NoError(err)
	require.Equal("created-id", id)
	require.Equal(1, api.createCalls)
}

func TestResolvePlaylistCreateFailureIsFatal(t *testing.T) {
	require := require.New(t)

	api := &stubPlaylistAPI{
		pages:     []*clients.PlaylistPage{{}},
		createErr: errors.New("quota exceeded"),
	}
	_, err := ResolvePlaylist(context.Background(), api, "Cam1")
	require.Error(err)
}

func TestLinkVideo(t *testing.T) {
	require := require.New(t)

	api := &stubPlaylistAPI{}
	require.True(LinkVideo(context.Background(), api, "pl-1", "vid123"))
	require.Equal([][2]string{{"pl-1", "vid123"}}, api.inserted)

	// Link failures are reported but never escalate.
	api.insertErr = errors.New("playlist gone")
	require.False(LinkVideo(context.Background(), api, "pl-1", "vid123"))
}
