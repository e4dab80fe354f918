package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"
)

// UnsetField is the sentinel for location hierarchy fields missing from the
// source object's tags. Key derivation always has four non-empty fields.
const UnsetField = "NULL"

// CivilZone is the fixed timezone capture timestamps are interpreted in.
// Camera clocks record local wall-clock time without zone info.
var CivilZone = time.FixedZone("UTC+8", 8*60*60)

// TimezoneLabel is the value recorded on output records.
const TimezoneLabel = "+8"

// LocationHierarchy is the four-level classification attached to each
// source file.
type LocationHierarchy struct {
	ProjectID      string
	Site           string
	SubSite        string
	CameraLocation string
}

// Path joins the four hierarchy fields with "/". Fields may carry the
// UnsetField sentinel; no validation or normalization is applied.
func (l LocationHierarchy) Path() string {
	return strings.Join([]string{l.ProjectID, l.Site, l.SubSite, l.CameraLocation}, "/")
}

// Digest returns the hex MD5 of text. It is the permanent identity scheme
// for records and de-duplication titles; the algorithm must never change
// without a migration of all existing records.
func Digest(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CorrectTime rebinds the wall-clock fields of a capture timestamp to the
// fixed civil zone. Probed timestamps carry whatever zone the container
// parser guessed; the cameras all record UTC+8 local time.
func CorrectTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), CivilZone)
}

// BuildRelocatedKey composes the canonical archival path for a source file:
// video/orig/<locationPath>/<basename>_<correctedEpoch>.<lowerExt>. The
// digest of this key, not the raw filename, is the upload title used for
// de-duplication and the identity on output records.
func BuildRelocatedKey(loc LocationHierarchy, originalFileName string, correctedEpoch int64) string {
	ext := path.Ext(originalFileName)
	base := strings.TrimSuffix(originalFileName, ext)
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return fmt.Sprintf("video/orig/%s/%s_%d.%s", loc.Path(), base, correctedEpoch, ext)
}

// Fingerprint is the content-derived identity of one source file.
type Fingerprint struct {
	Location       LocationHierarchy
	LocationDigest string
	CorrectedTime  time.Time
	RelocatedKey   string
	// Digest of the relocated key. Doubles as the video title on the host
	// and as the de-duplication search term.
	Digest string
}

// NewFingerprint derives the stable identity for a file from its location
// hierarchy, original name and capture timestamp. Equal inputs yield equal
// fingerprints across processes and restarts.
func NewFingerprint(loc LocationHierarchy, originalFileName string, captureTime time.Time) Fingerprint {
	corrected := CorrectTime(captureTime)
	key := BuildRelocatedKey(loc, originalFileName, corrected.Unix())
	return Fingerprint{
		Location:       loc,
		LocationDigest: Digest(loc.Path()),
		CorrectedTime:  corrected,
		RelocatedKey:   key,
		Digest:         Digest(key),
	}
}
