package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

type CatalogOptions struct {
	BaseURL string
}

// Catalog talks to the multimedia metadata catalog's query API.
type Catalog struct {
	CatalogOptions
	BaseClient
}

func NewCatalog(opts CatalogOptions) *Catalog {
	return &Catalog{opts, BaseClient{
		BaseUrl: opts.BaseURL,
	}}
}

type MultimediaQuery struct {
	UploadedFileName          string `json:"uploadedFileName"`
	DateTimeOriginalTimestamp int64  `json:"dateTimeOriginalTimestamp"`
	FullCameraLocationMd5     string `json:"fullCameraLocationMd5"`
}

type MultimediaRecord struct {
	URL        string `json:"url"`
	PlaylistID string `json:"playlistId"`
}

type multimediaQueryResponse struct {
	Results []MultimediaRecord `json:"results"`
}

// QueryMultimedia looks up existing catalog records for a file by name,
// corrected capture timestamp and location digest.
func (c *Catalog) QueryMultimedia(ctx context.Context, query MultimediaQuery) ([]MultimediaRecord, error) {
	payload, err := json.Marshal(map[string]MultimediaQuery{"query": query})
	if err != nil {
		return nil, err
	}
	var resp multimediaQueryResponse
	err = c.DoRequest(ctx, Request{
		Method:      http.MethodPost,
		URL:         "/media/query",
		Body:        bytes.NewReader(payload),
		ContentType: "application/json",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("error querying multimedia metadata: %w", err)
	}
	return resp.Results, nil
}
