package ingest

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/TaiBIF/camera-trap/clients"
	"github.com/TaiBIF/camera-trap/metrics"
)

// playlistPageSize is the host page size used while scanning for an
// existing playlist.
const playlistPageSize = 5

// PlaylistAPI is the collection-management surface of the video host.
type PlaylistAPI interface {
	ListOwnPlaylists(ctx context.Context, pageToken string, maxResults int) (*clients.PlaylistPage, error)
	CreatePlaylist(ctx context.Context, name string) (string, error)
	InsertPlaylistItem(ctx context.Context, playlistID, videoID string) error
}

// ResolvePlaylist finds the playlist whose title exactly equals name,
// paging through the channel's playlists, and creates it if no page holds a
// match. Titles are compared case-sensitively with no normalization; a name
// differing only in case or whitespace is a distinct playlist.
func ResolvePlaylist(ctx context.Context, api PlaylistAPI, name string) (string, error) {
	pageToken := ""
	for {
		page, err := api.ListOwnPlaylists(ctx, pageToken, playlistPageSize)
		if err != nil {
			return "", fmt.Errorf("error listing playlists: %w", err)
		}
		for _, playlist := range page.Items {
			if playlist.Title == name {
				return playlist.ID, nil
			}
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	id, err := api.CreatePlaylist(ctx, name)
	if err != nil {
		return "", fmt.Errorf("error creating playlist %q: %w", name, err)
	}
	glog.Infof("Created playlist name=%q playlistId=%s", name, id)
	return id, nil
}

// LinkVideo inserts the video into the playlist at the host-default
// position. Failure is logged and reported but never fatal: the uploaded
// video matters more than its organizational placement.
func LinkVideo(ctx context.Context, api PlaylistAPI, playlistID, videoID string) bool {
	if err := api.InsertPlaylistItem(ctx, playlistID, videoID); err != nil {
		glog.Errorf("Error adding video to playlist videoId=%s playlistId=%s err=%q", videoID, playlistID, err)
		metrics.PlaylistLinkFailures.Inc()
		return false
	}
	glog.Infof("Video added to playlist videoId=%s playlistId=%s", videoID, playlistID)
	return true
}
