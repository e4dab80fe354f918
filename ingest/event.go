package ingest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// ObjectCreatedNotification is the trigger for one ingest job: a new object
// landed in the source bucket.
type ObjectCreatedNotification struct {
	Bucket string
	// Key is the decoded object key, e.g. "upload/<sessionId>/<fileName>".
	Key string
}

// s3Event is the S3-style notification shape published by the bucket,
// reduced to the fields the pipeline consumes.
type s3Event struct {
	Records []struct {
		S3 struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseObjectCreated decodes an object-created notification. Object keys
// arrive URL-encoded and are decoded here. Malformed notifications are
// unretriable.
func ParseObjectCreated(body []byte) (*ObjectCreatedNotification, error) {
	var evt s3Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, UnretriableError{fmt.Errorf("error parsing notification: %w", err)}
	}
	if len(evt.Records) == 0 {
		return nil, UnretriableError{fmt.Errorf("notification carries no records")}
	}
	rec := evt.Records[0].S3
	key, err := url.QueryUnescape(rec.Object.Key)
	if err != nil {
		return nil, UnretriableError{fmt.Errorf("error decoding object key %q: %w", rec.Object.Key, err)}
	}
	return &ObjectCreatedNotification{Bucket: rec.Bucket.Name, Key: key}, nil
}

// SplitObjectKey resolves the upload session id and file name from an
// object key shaped like <prefix>/<sessionId>/.../<fileName>.
func SplitObjectKey(key string) (sessionID, fileName string, err error) {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return "", "", UnretriableError{fmt.Errorf("object key %q has no session segment", key)}
	}
	return parts[1], parts[len(parts)-1], nil
}

// UploadTags are the uploader-provided object tags, with the sentinel
// substituted for every missing field so downstream key derivation never
// sees an absent value.
type UploadTags struct {
	ProjectID      string
	ProjectTitle   string
	Site           string
	SubSite        string
	CameraLocation string
	UserID         string
}

func NewUploadTags(raw map[string]string) UploadTags {
	get := func(key string) string {
		if v, ok := raw[key]; ok && v != "" {
			return v
		}
		return UnsetField
	}
	return UploadTags{
		ProjectID:      get("projectId"),
		ProjectTitle:   get("projectTitle"),
		Site:           get("site"),
		SubSite:        get("subSite"),
		CameraLocation: get("cameraLocation"),
		UserID:         get("userId"),
	}
}

func (t UploadTags) Hierarchy() LocationHierarchy {
	return LocationHierarchy{
		ProjectID:      t.ProjectID,
		Site:           t.Site,
		SubSite:        t.SubSite,
		CameraLocation: t.CameraLocation,
	}
}

// Values returns the tag values in a fixed order, used as keyword tags on
// the uploaded video.
func (t UploadTags) Values() []string {
	return []string{t.ProjectID, t.ProjectTitle, t.Site, t.SubSite, t.CameraLocation, t.UserID}
}

// Map returns the tags as written onto emitted record objects for
// downstream filtering.
func (t UploadTags) Map() map[string]string {
	return map[string]string{
		"projectId":      t.ProjectID,
		"projectTitle":   t.ProjectTitle,
		"site":           t.Site,
		"subSite":        t.SubSite,
		"cameraLocation": t.CameraLocation,
		"userId":         t.UserID,
	}
}
