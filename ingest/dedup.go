package ingest

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/TaiBIF/camera-trap/clients"
)

// VideoSearcher is the read-only search surface of the video host.
type VideoSearcher interface {
	SearchOwnVideos(ctx context.Context, query string, maxResults int) ([]clients.SearchResult, error)
}

// FindExistingVideo checks whether a video titled exactly titleDigest was
// already uploaded, and returns its id if so. The host search is a keyword
// search, so a returned item is only trusted after an exact title
// comparison.
//
// This advisory check is the only de-duplication guard and it is racy:
// two concurrent jobs with the same fingerprint can both pass it and both
// upload, leaving two host items sharing a title. Accepted limitation.
func FindExistingVideo(ctx context.Context, searcher VideoSearcher, titleDigest string) (string, bool, error) {
	results, err := searcher.SearchOwnVideos(ctx, titleDigest, 1)
	if err != nil {
		return "", false, fmt.Errorf("error searching for existing video: %w", err)
	}
	if len(results) == 0 {
		return "", false, nil
	}
	if results[0].Title != titleDigest {
		glog.V(4).Infof("Search returned keyword match, not a duplicate title=%q query=%q", results[0].Title, titleDigest)
		return "", false, nil
	}
	return results[0].VideoID, true, nil
}
