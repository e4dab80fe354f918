package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"golang.org/x/oauth2"
)

const (
	defaultAPIBaseURL    = "https://www.googleapis.com/youtube/v3"
	defaultUploadBaseURL = "https://www.googleapis.com/upload/youtube/v3"
	defaultTokenURL      = "https://oauth2.googleapis.com/token"
)

type VideoHostOptions struct {
	BaseURL       string
	UploadBaseURL string
	TokenURL      string

	ClientID     string
	ClientSecret string
	RefreshToken string

	// ChunkSize is the number of bytes sent per upload request. Zero or
	// negative sends the whole remainder of the file in a single request.
	ChunkSize int64
}

// VideoHost is a client for a YouTube-style Data API: resumable video
// uploads, search over the channel's own uploads and playlist management.
type VideoHost struct {
	VideoHostOptions
	BaseClient
}

func NewVideoHost(opts VideoHostOptions) *VideoHost {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultAPIBaseURL
	}
	if opts.UploadBaseURL == "" {
		opts.UploadBaseURL = defaultUploadBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = defaultTokenURL
	}
	oauthCfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: opts.TokenURL},
	}
	httpClient := oauthCfg.Client(context.Background(), &oauth2.Token{RefreshToken: opts.RefreshToken})
	return &VideoHost{opts, BaseClient{
		Client:  httpClient,
		BaseUrl: opts.BaseURL,
	}}
}

type VideoResource struct {
	ID string `json:"id"`
}

type SearchResult struct {
	VideoID string
	Title   string
}

type searchListResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// SearchOwnVideos searches the authenticated channel's own uploads.
func (c *VideoHost) SearchOwnVideos(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	params := url.Values{
		"part":       {"snippet"},
		"forMine":    {"true"},
		"type":       {"video"},
		"maxResults": {strconv.Itoa(maxResults)},
		"q":          {query},
	}
	var resp searchListResponse
	err := c.DoRequest(ctx, Request{
		Method: "GET",
		URL:    "/search?" + params.Encode(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("error searching videos: %w", err)
	}
	results := make([]SearchResult, len(resp.Items))
	for i, item := range resp.Items {
		results[i] = SearchResult{VideoID: item.ID.VideoID, Title: item.Snippet.Title}
	}
	return results, nil
}

type Playlist struct {
	ID    string
	Title string
}

type PlaylistPage struct {
	Items         []Playlist
	NextPageToken string
}

type playlistListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

// ListOwnPlaylists returns one page of the channel's playlists. Pass the
// NextPageToken of the previous page to continue, empty for the first page.
func (c *VideoHost) ListOwnPlaylists(ctx context.Context, pageToken string, maxResults int) (*PlaylistPage, error) {
	params := url.Values{
		"part":       {"snippet,contentDetails"},
		"mine":       {"true"},
		"maxResults": {strconv.Itoa(maxResults)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}
	var resp playlistListResponse
	err := c.DoRequest(ctx, Request{
		Method: "GET",
		URL:    "/playlists?" + params.Encode(),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("error listing playlists: %w", err)
	}
	page := &PlaylistPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		page.Items = append(page.Items, Playlist{ID: item.ID, Title: item.Snippet.Title})
	}
	return page, nil
}

type playlistInsertBody struct {
	Snippet struct {
		Title           string   `json:"title"`
		Description     string   `json:"description"`
		Tags            []string `json:"tags"`
		DefaultLanguage string   `json:"defaultLanguage"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// CreatePlaylist creates a public playlist with title, description and a
// single tag all equal to name, and returns the new playlist id.
func (c *VideoHost) CreatePlaylist(ctx context.Context, name string) (string, error) {
	var body playlistInsertBody
	body.Snippet.Title = name
	body.Snippet.Description = name
	body.Snippet.Tags = []string{name}
	body.Status.PrivacyStatus = "public"
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	err = c.DoRequest(ctx, Request{
		Method:      "POST",
		URL:         "/playlists?part=snippet,status",
		Body:        bytes.NewReader(payload),
		ContentType: "application/json",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("error creating playlist: %w", err)
	}
	return resp.ID, nil
}

type playlistItemInsertBody struct {
	Snippet struct {
		PlaylistID string `json:"playlistId"`
		ResourceID struct {
			Kind    string `json:"kind"`
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
	} `json:"snippet"`
}

// InsertPlaylistItem appends the video to the playlist at the host-default
// position.
func (c *VideoHost) InsertPlaylistItem(ctx context.Context, playlistID, videoID string) error {
	var body playlistItemInsertBody
	body.Snippet.PlaylistID = playlistID
	body.Snippet.ResourceID.Kind = "youtube#video"
	body.Snippet.ResourceID.VideoID = videoID
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	err = c.DoRequest(ctx, Request{
		Method:      "POST",
		URL:         "/playlistItems?part=snippet",
		Body:        bytes.NewReader(payload),
		ContentType: "application/json",
	}, nil)
	if err != nil {
		return fmt.Errorf("error inserting playlist item: %w", err)
	}
	return nil
}

type UploadMetadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

type videoInsertBody struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// ResumableUpload is one resumable transfer of a video file. The session
// owns the byte offset acknowledged by the host; callers drive it by calling
// NextChunk until it returns a non-nil VideoResource or an error.
type ResumableUpload struct {
	host  *VideoHost
	media io.ReaderAt
	size  int64
	meta  UploadMetadata

	uploadURL string
	offset    int64
	// stale is set after a failed send. The next call re-queries the host
	// for the last acknowledged offset before sending more bytes.
	stale bool
}

func (c *VideoHost) NewResumableUpload(media io.ReaderAt, size int64, meta UploadMetadata) *ResumableUpload {
	return &ResumableUpload{host: c, media: media, size: size, meta: meta}
}

// NextChunk performs the next step of the transfer: session initiation on
// the first call, then one chunk per call. It returns (nil, nil) while the
// transfer is still in progress, the video resource once the host reports
// completion, and an error on failure. Failed sessions are resumable: call
// NextChunk again and it continues from the last acknowledged byte.
func (u *ResumableUpload) NextChunk(ctx context.Context) (*VideoResource, error) {
	if u.uploadURL == "" {
		return nil, u.initiate(ctx)
	}
	if u.stale {
		return u.queryOffset(ctx)
	}
	return u.sendChunk(ctx)
}

func (u *ResumableUpload) initiate(ctx context.Context) error {
	var body videoInsertBody
	body.Snippet.Title = u.meta.Title
	body.Snippet.Description = u.meta.Description
	body.Snippet.Tags = u.meta.Tags
	body.Snippet.CategoryID = u.meta.CategoryID
	body.Status.PrivacyStatus = u.meta.Privacy
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := u.host.UploadBaseURL + "/videos?uploadType=resumable&part=snippet,status"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(u.size, 10))
	req.Header.Set("X-Upload-Content-Type", "video/*")

	resp, err := u.host.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return u.statusError(resp)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return &HTTPStatusError{resp.StatusCode, "no upload session location in response"}
	}
	u.uploadURL = location
	return nil
}

func (u *ResumableUpload) sendChunk(ctx context.Context) (*VideoResource, error) {
	remaining := u.size - u.offset
	n := remaining
	if u.host.ChunkSize > 0 && u.host.ChunkSize < remaining {
		n = u.host.ChunkSize
	}
	body := io.NewSectionReader(u.media, u.offset, n)

	req, err := http.NewRequestWithContext(ctx, "PUT", u.uploadURL, body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = n
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", u.offset, u.offset+n-1, u.size))

	resp, err := u.host.httpClient().Do(req)
	if err != nil {
		u.stale = true
		return nil, err
	}
	defer resp.Body.Close()
	return u.handleSendResponse(resp)
}

// queryOffset asks the host how many bytes it has persisted, so a failed
// transfer continues from the last acknowledged chunk instead of byte zero.
func (u *ResumableUpload) queryOffset(ctx context.Context) (*VideoResource, error) {
	req, err := http.NewRequestWithContext(ctx, "PUT", u.uploadURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", u.size))

	resp, err := u.host.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return u.handleSendResponse(resp)
}

func (u *ResumableUpload) handleSendResponse(resp *http.Response) (*VideoResource, error) {
	switch {
	case resp.StatusCode == http.StatusPermanentRedirect: // 308 Resume Incomplete
		u.offset = parseAckedOffset(resp.Header.Get("Range"))
		u.stale = false
		glog.V(4).Infof("Upload chunk acknowledged offset=%d size=%d", u.offset, u.size)
		return nil, nil
	case resp.StatusCode/100 == 2:
		u.stale = false
		var video VideoResource
		if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
			return nil, fmt.Errorf("error decoding upload response: %w", err)
		}
		return &video, nil
	default:
		u.stale = true
		return nil, u.statusError(resp)
	}
}

func (u *ResumableUpload) statusError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		glog.Warningf("Error reading upload error response body err=%v", err)
	}
	return &HTTPStatusError{resp.StatusCode, string(body)}
}

// parseAckedOffset reads a "Range: bytes=0-N" header into the next offset to
// send from. A missing or malformed header means no bytes were persisted.
func parseAckedOffset(rangeHeader string) int64 {
	if rangeHeader == "" {
		return 0
	}
	_, upper, found := strings.Cut(rangeHeader, "-")
	if !found {
		return 0
	}
	last, err := strconv.ParseInt(upper, 10, 64)
	if err != nil {
		return 0
	}
	return last + 1
}
