package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestHost spins up an httptest server that also answers the OAuth token
// refresh, and a VideoHost pointed at it.
func newTestHost(t *testing.T, handler http.HandlerFunc) (*VideoHost, *httptest.Server) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(rw http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.FormValue("grant_type"))
		rw.Header().Set("Content-Type", "application/json")
		fmt.Fprint(rw, `{"access_token":"atoken","token_type":"Bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	host := NewVideoHost(VideoHostOptions{
		BaseURL:       server.URL + "/api",
		UploadBaseURL: server.URL + "/upload",
		TokenURL:      server.URL + "/token",
		ClientID:      "cid",
		ClientSecret:  "csecret",
		RefreshToken:  "rtoken",
	})
	return host, server
}

func TestSearchOwnVideos(t *testing.T) {
	require := require.New(t)

	var gotQuery, gotAuth string
	host, _ := newTestHost(t, func(rw http.ResponseWriter, r *http.Request) {
		require.Equal("/api/search", r.URL.Path)
		require.Equal("true", r.URL.Query().Get("forMine"))
		require.Equal("video", r.URL.Query().Get("type"))
		require.Equal("1", r.URL.Query().Get("maxResults"))
		gotQuery = r.URL.Query().Get("q")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(rw, `{"items":[{"id":{"videoId":"vid123"},"snippet":{"title":"deadbeef"}}]}`)
	})

	results, err := host.SearchOwnVideos(context.Background(), "deadbeef", 1)
	require.NoError(err)
	require.Equal([]SearchResult{{VideoID: "vid123", Title: "deadbeef"}}, results)
	require.Equal("deadbeef", gotQuery)
	require.Equal("Bearer atoken", gotAuth)
}

func TestListOwnPlaylists(t *testing.T) {
	require := require.New(t)

	host, _ := newTestHost(t, func(rw http.ResponseWriter, r *http.Request) {
		require.Equal("/api/playlists", r.URL.Path)
		require.Equal("true", r.URL.Query().Get("mine"))
		require.Equal("page2", r.URL.Query().Get("pageToken"))
		fmt.Fprint(rw, `{"items":[{"id":"pl-1","snippet":{"title":"Cam1"}}],"nextPageToken":"page3"}`)
	})

	page, err := host.ListOwnPlaylists(context.Background(), "page2", 5)
	require.NoError(err)
	require.Equal(&PlaylistPage{
		Items:         []Playlist{{ID: "pl-1", Title: "Cam1"}},
		NextPageToken: "page3",
	}, page)
}

func TestCreatePlaylist(t *testing.T) {
	require := require.New(t)

	host, _ := newTestHost(t, func(rw http.ResponseWriter, r *http.Request) {
		require.Equal("POST", r.Method)
		require.Equal("/api/playlists", r.URL.Path)
		var body playlistInsertBody
		require.NoError(json.NewDecoder(r.Body).Decode(&body))
		require.Equal("Cam1", body.Snippet.Title)
		require.Equal("Cam1", body.Snippet.Description)
		require.Equal([]string{"Cam1"}, body.Snippet.Tags)
		require.Equal("public", body.Status.PrivacyStatus)
		fmt.Fprint(rw, `{"id":"pl-9"}`)
	})

	id, err := host.CreatePlaylist(context.Background(), "Cam1")
	require.NoError(err)
	require.Equal("pl-9", id)
}

func TestInsertPlaylistItem(t *testing.T) {
	require := require.New(t)

	host, _ := newTestHost(t, func(rw http.ResponseWriter, r *http.Request) {
		require.Equal("/api/playlistItems", r.URL.Path)
		var body playlistItemInsertBody
		require.NoError(json.NewDecoder(r.Body).Decode(&body))
		require.Equal("pl-1", body.Snippet.PlaylistID)
		require.Equal("youtube#video", body.Snippet.ResourceID.Kind)
		require.Equal("vid123", body.Snippet.ResourceID.VideoID)
		fmt.Fprint(rw, `{}`)
	})
	require.NoError(host.InsertPlaylistItem(context.Background(), "pl-1", "vid123"))
}

func TestInsertPlaylistItemError(t *testing.T) {
	require := require.New(t)

	host, _ := newTestHost(t, func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "playlist not found", http.StatusNotFound)
	})
	err := host.InsertPlaylistItem(context.Background(), "pl-1", "vid123")
	require.Error(err)

	var statusErr *HTTPStatusError
	require.True(errors.As(err, &statusErr))
	require.Equal(404, statusErr.Status)
}

// uploadServer scripts the host side of a resumable transfer.
type uploadServer struct {
	t *testing.T

	sessionPath string
	// persisted is the number of bytes acknowledged so far.
	persisted int64
	total     int64
	// failNext makes the next chunk request answer with the given status.
	failNext int
	ranges   []string
	received []byte
}

func (s *uploadServer) handler(rw http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == "POST" && r.URL.Path == "/upload/videos":
		require.Equal(s.t, "resumable", r.URL.Query().Get("uploadType"))
		require.NotEmpty(s.t, r.Header.Get("X-Upload-Content-Length"))
		rw.Header().Set("Location", "http://"+r.Host+s.sessionPath)
		rw.WriteHeader(http.StatusOK)
	case r.Method == "PUT" && r.URL.Path == s.sessionPath:
		contentRange := r.Header.Get("Content-Range")
		s.ranges = append(s.ranges, contentRange)
		if s.failNext != 0 {
			status := s.failNext
			s.failNext = 0
			http.Error(rw, "transient", status)
			return
		}
		if strings.HasPrefix(contentRange, "bytes */") {
			s.answerProgress(rw)
			return
		}
		chunk := make([]byte, r.ContentLength)
		_, err := io.ReadFull(r.Body, chunk)
		require.NoError(s.t, err)
		s.received = append(s.received, chunk...)
		s.persisted += int64(len(chunk))
		s.answerProgress(rw)
	default:
		s.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		rw.WriteHeader(http.StatusNotFound)
	}
}

func (s *uploadServer) answerProgress(rw http.ResponseWriter) {
	if s.persisted >= s.total {
		fmt.Fprint(rw, `{"id":"vid123"}`)
		return
	}
	if s.persisted > 0 {
		rw.Header().Set("Range", fmt.Sprintf("bytes=0-%d", s.persisted-1))
	}
	rw.WriteHeader(http.StatusPermanentRedirect)
}

func TestResumableUpload(t *testing.T) {
	require := require.New(t)

	media := []byte("0123456789")
	server := &uploadServer{t: t, sessionPath: "/upload/session-1", total: int64(len(media))}
	host, _ := newTestHost(t, server.handler)
	host.ChunkSize = 4

	upload := host.NewResumableUpload(bytes.NewReader(media), int64(len(media)), UploadMetadata{
		Title:      "deadbeef",
		CategoryID: "27",
		Privacy:    "public",
	})

	// Initiation, then two 4-byte chunks, then the 2-byte tail.
	for i := 0; i < 3; i++ {
		video, err := upload.NextChunk(context.Background())
		require.NoError(err)
		require.Nil(video)
	}
	video, err := upload.NextChunk(context.Background())
	require.NoError(err)
	require.Equal("vid123", video.ID)

	require.Equal(media, server.received)
	require.Equal([]string{
		"bytes 0-3/10",
		"bytes 4-7/10",
		"bytes 8-9/10",
	}, server.ranges)
}

func TestResumableUploadResumesAfterFault(t *testing.T) {
	require := require.New(t)

	media := []byte("0123456789")
	server := &uploadServer{t: t, sessionPath: "/upload/session-2", total: int64(len(media))}
	host, _ := newTestHost(t, server.handler)
	host.ChunkSize = 4

	upload := host.NewResumableUpload(bytes.NewReader(media), int64(len(media)), UploadMetadata{Title: "deadbeef"})

	_, err := upload.NextChunk(context.Background())
	require.NoError(err) // initiate
	_, err = upload.NextChunk(context.Background())
	require.NoError(err) // bytes 0-3

	// The next chunk faults; the transfer must re-query the acknowledged
	// offset and continue from byte 4, not restart or skip.
	server.failNext = 503
	_, err = upload.NextChunk(context.Background())
	var statusErr *HTTPStatusError
	require.True(errors.As(err, &statusErr))
	require.Equal(503, statusErr.Status)

	for {
		video, err := upload.NextChunk(context.Background())
		require.NoError(err)
		if video != nil {
			require.Equal("vid123", video.ID)
			break
		}
	}
	require.Equal(media, server.received)
	require.Contains(server.ranges, "bytes */10")
}

func TestResumableUploadInitiateWithoutLocation(t *testing.T) {
	require := require.New(t)

	host, _ := newTestHost(t, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	upload := host.NewResumableUpload(bytes.NewReader(nil), 0, UploadMetadata{})
	_, err := upload.NextChunk(context.Background())
	require.Error(err)

	var statusErr *HTTPStatusError
	require.True(errors.As(err, &statusErr))
}

func TestParseAckedOffset(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(int64(4), parseAckedOffset("bytes=0-3"))
	assert.Equal(int64(1), parseAckedOffset("bytes=0-0"))
	assert.Equal(int64(0), parseAckedOffset(""))
	assert.Equal(int64(0), parseAckedOffset("bytes"))
	assert.Equal(int64(0), parseAckedOffset("bytes=0-x"))
}
