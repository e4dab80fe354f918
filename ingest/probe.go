package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// MediaInfo is the typed attribute bag extracted from a video container.
// Every field has a defined default; missing timestamps fall back to the
// file's filesystem times.
type MediaInfo struct {
	CaptureTime time.Time
	ModifyTime  time.Time
	Duration    string
	Width       int
	Height      int
	Make        string
	Model       string
	// DeviceMetadata carries the raw container tags for the full metadata
	// record, uninterpreted.
	DeviceMetadata map[string]interface{}
}

// creationTimeLayouts covers the timestamp formats seen in camera trap
// containers.
var creationTimeLayouts = []string{
	"2006-01-02T15:04:05.000000Z",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ProbeFile extracts media attributes from a local video file.
func ProbeFile(ctx context.Context, localPath string) (*MediaInfo, error) {
	data, err := ffprobe.ProbeURL(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("error probing file %q: %w", localPath, err)
	}

	info := &MediaInfo{
		Duration:       formatDuration(data.Format.DurationSeconds),
		DeviceMetadata: map[string]interface{}(data.Format.TagList),
	}
	if stream := data.FirstVideoStream(); stream != nil {
		info.Width, info.Height = stream.Width, stream.Height
	}
	info.Make, _ = data.Format.TagList.GetString("make")
	info.Model, _ = data.Format.TagList.GetString("model")

	stat, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("error reading file info for %q: %w", localPath, err)
	}
	info.CaptureTime = tagTime(data.Format.TagList, "creation_time", stat.ModTime())
	info.ModifyTime = tagTime(data.Format.TagList, "modification_time", stat.ModTime())

	glog.Infof("Probed video file=%q duration=%q width=%d height=%d make=%q model=%q captureTime=%v",
		localPath, info.Duration, info.Width, info.Height, info.Make, info.Model, info.CaptureTime)
	return info, nil
}

func tagTime(tags ffprobe.Tags, key string, fallback time.Time) time.Time {
	raw, err := tags.GetString(key)
	if err != nil || raw == "" {
		return fallback
	}
	for _, layout := range creationTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	glog.Warningf("Unparseable %s tag value=%q, falling back to file time", key, raw)
	return fallback
}

func formatDuration(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
