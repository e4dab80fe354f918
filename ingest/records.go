package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/golang/glog"
)

const (
	recordTypeMovingImage = "MovingImage"
	// recordTimeLayout is the human-readable timestamp format on records.
	recordTimeLayout = "2006-01-02 15:04:05"
)

// RecordInputs are the collected attributes of one finished job, consumed
// by the record builders.
type RecordInputs struct {
	Fingerprint Fingerprint
	Tags        UploadTags
	Media       *MediaInfo
	SessionID   string
	FileName    string
	WatchURL    string
	PlaylistID  string
}

// recordSet carries the fields rewritten on every re-run of the same file.
type recordSet struct {
	ModifiedBy       string `json:"modifiedBy"`
	Type             string `json:"type"`
	DateTimeOriginal string `json:"dateTimeOriginal"`
	LengthOfVideo    string `json:"lengthOfVideo"`
	PlaylistID       string `json:"playlistId"`
}

// recordSetOnInsert carries the fields fixed at first insert. For a given
// input job this section is a pure function of the inputs: repeated emits
// produce identical values.
type recordSetOnInsert struct {
	URL                        string `json:"url"`
	URLMd5                     string `json:"urlMd5"`
	DateTimeOriginalTimestamp  int64  `json:"dateTimeOriginalTimestamp"`
	DateTimeCorrectedTimestamp int64  `json:"dateTimeCorrectedTimestamp"`
	DateTimeCorrected          string `json:"dateTimeCorrected"`
	ProjectID                  string `json:"projectId"`
	ProjectTitle               string `json:"projectTitle"`
	Site                       string `json:"site"`
	SubSite                    string `json:"subSite"`
	CameraLocation             string `json:"cameraLocation"`
	FullCameraLocationMd5      string `json:"fullCameraLocationMd5"`
	UploadedFileName           string `json:"uploadedFileName"`
	Timezone                   string `json:"timezone"`
	Year                       int    `json:"year"`
	Month                      int    `json:"month"`
	Day                        int    `json:"day"`
	Hour                       int    `json:"hour"`
}

type TokenField struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
}

type SpeciesToken struct {
	Data []TokenField `json:"data"`
}

type annotationSetOnInsert struct {
	recordSetOnInsert
	Tokens []SpeciesToken `json:"tokens"`
}

type annotationAddToSet struct {
	RelatedUploadSessions string `json:"relatedUploadSessions"`
}

// AnnotationRecord is the catalog document that species annotations hang
// off of. The $set/$setOnInsert/$addToSet sections are mutation intents for
// the downstream catalog, not local state.
type AnnotationRecord struct {
	ID                    string                `json:"_id"`
	ProjectID             string                `json:"projectId"`
	FullCameraLocationMd5 string                `json:"fullCameraLocationMd5"`
	Set                   recordSet             `json:"$set"`
	SetOnInsert           annotationSetOnInsert `json:"$setOnInsert"`
	AddToSet              annotationAddToSet    `json:"$addToSet"`
	Upsert                bool                  `json:"$upsert"`
}

type fullMetadataSet struct {
	recordSet
	DeviceMetadata map[string]interface{} `json:"deviceMetadata"`
	Make           string                 `json:"make"`
	Model          string                 `json:"model"`
	ModifyDate     string                 `json:"modifyDate"`
	Width          int                    `json:"width"`
	Height         int                    `json:"height"`
}

// FullMetadataRecord is the catalog document carrying the complete probed
// media attributes.
type FullMetadataRecord struct {
	ID                    string            `json:"_id"`
	ProjectID             string            `json:"projectId"`
	FullCameraLocationMd5 string            `json:"fullCameraLocationMd5"`
	Set                   fullMetadataSet   `json:"$set"`
	SetOnInsert           recordSetOnInsert `json:"$setOnInsert"`
	Upsert                bool              `json:"$upsert"`
}

// recordEnvelope is the wire wrapper handed to the storage collaborator:
// the catalog endpoint to post to plus the document itself.
type recordEnvelope struct {
	Endpoint string        `json:"endpoint"`
	Post     []interface{} `json:"post"`
}

func buildRecordSet(in RecordInputs) recordSet {
	return recordSet{
		ModifiedBy:       in.Tags.UserID,
		Type:             recordTypeMovingImage,
		DateTimeOriginal: in.Fingerprint.CorrectedTime.Format(recordTimeLayout),
		LengthOfVideo:    in.Media.Duration,
		PlaylistID:       in.PlaylistID,
	}
}

func buildSetOnInsert(in RecordInputs) recordSetOnInsert {
	corrected := in.Fingerprint.CorrectedTime
	return recordSetOnInsert{
		URL:                        in.WatchURL,
		URLMd5:                     Digest(in.WatchURL),
		DateTimeOriginalTimestamp:  corrected.Unix(),
		DateTimeCorrectedTimestamp: corrected.Unix(),
		DateTimeCorrected:          corrected.Format(recordTimeLayout),
		ProjectID:                  in.Tags.ProjectID,
		ProjectTitle:               in.Tags.ProjectTitle,
		Site:                       in.Tags.Site,
		SubSite:                    in.Tags.SubSite,
		CameraLocation:             in.Tags.CameraLocation,
		FullCameraLocationMd5:      in.Fingerprint.LocationDigest,
		UploadedFileName:           in.FileName,
		Timezone:                   TimezoneLabel,
		Year:                       corrected.Year(),
		Month:                      int(corrected.Month()),
		Day:                        corrected.Day(),
		Hour:                       corrected.Hour(),
	}
}

// BuildAnnotationRecord builds the annotation document, keyed by the digest
// of the final watch URL.
func BuildAnnotationRecord(in RecordInputs) AnnotationRecord {
	return AnnotationRecord{
		ID:                    Digest(in.WatchURL),
		ProjectID:             in.Tags.ProjectID,
		FullCameraLocationMd5: in.Fingerprint.LocationDigest,
		Set:                   buildRecordSet(in),
		SetOnInsert: annotationSetOnInsert{
			recordSetOnInsert: buildSetOnInsert(in),
			// Empty species placeholder so annotators have a slot to fill.
			Tokens: []SpeciesToken{{Data: []TokenField{{Key: "species", Label: "物種", Value: ""}}}},
		},
		AddToSet: annotationAddToSet{RelatedUploadSessions: in.SessionID},
		Upsert:   true,
	}
}

// BuildFullMetadataRecord builds the full metadata document, keyed the same
// way as the annotation record.
func BuildFullMetadataRecord(in RecordInputs) FullMetadataRecord {
	return FullMetadataRecord{
		ID:                    Digest(in.WatchURL),
		ProjectID:             in.Tags.ProjectID,
		FullCameraLocationMd5: in.Fingerprint.LocationDigest,
		Set: fullMetadataSet{
			recordSet:      buildRecordSet(in),
			DeviceMetadata: in.Media.DeviceMetadata,
			Make:           in.Media.Make,
			Model:          in.Media.Model,
			ModifyDate:     in.Media.ModifyTime.In(CivilZone).Format(recordTimeLayout),
			Width:          in.Media.Width,
			Height:         in.Media.Height,
		},
		SetOnInsert: buildSetOnInsert(in),
		Upsert:      true,
	}
}

// RecordEmitter serializes the two output documents and hands them to the
// storage collaborator for the downstream catalog loader to pick up.
type RecordEmitter struct {
	Store       BlobStore
	Bucket      string
	EndpointMMA string
	EndpointMMM string
}

// Emit writes the annotation and full metadata records under
// json/<sessionId>/<userId>/<fileName>.{mma,mmm}.json, tagged with the
// location hierarchy and user id. Write failures propagate to the caller.
func (e *RecordEmitter) Emit(ctx context.Context, in RecordInputs) error {
	if err := e.put(ctx, in, "mma", e.EndpointMMA, BuildAnnotationRecord(in)); err != nil {
		return err
	}
	return e.put(ctx, in, "mmm", e.EndpointMMM, BuildFullMetadataRecord(in))
}

func (e *RecordEmitter) put(ctx context.Context, in RecordInputs, kind, endpoint string, record interface{}) error {
	body, err := json.Marshal(recordEnvelope{Endpoint: endpoint, Post: []interface{}{record}})
	if err != nil {
		return fmt.Errorf("error marshalling %s record: %w", kind, err)
	}
	key := path.Join("json", in.SessionID, in.Tags.UserID, fmt.Sprintf("%s.%s.json", in.FileName, kind))
	if err := e.Store.Put(ctx, e.Bucket, key, body, in.Tags.Map()); err != nil {
		return fmt.Errorf("error emitting %s record: %w", kind, err)
	}
	glog.Infof("Emitted %s record bucket=%s key=%q recordId=%s sessionId=%s", kind, e.Bucket, key, Digest(in.WatchURL), in.SessionID)
	return nil
}
