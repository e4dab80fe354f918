package ingest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/golang/glog"

	"github.com/TaiBIF/camera-trap/clients"
	"github.com/TaiBIF/camera-trap/metrics"
)

// MaxUploadRetries bounds how many retriable faults one transfer absorbs
// before the job is terminated.
const MaxUploadRetries = 10

// maxBackoffExp caps exponential growth of the backoff window at 2^10s.
const maxBackoffExp = 10

// ChunkSender is the transport side of a resumable transfer. NextChunk
// sends the next chunk and returns (nil, nil) while the transfer is in
// progress, the completed video resource on success, or an error. The
// transport owns chunk sizing and the acknowledged-bytes pointer.
type ChunkSender interface {
	NextChunk(ctx context.Context) (*clients.VideoResource, error)
}

// UploadDriver drives a resumable transfer to completion with bounded
// full-jitter exponential backoff on retriable faults.
type UploadDriver struct {
	MaxRetries int

	sleepFn  func(ctx context.Context, d time.Duration) error
	jitterFn func() float64
}

func NewUploadDriver() *UploadDriver {
	return &UploadDriver{
		MaxRetries: MaxUploadRetries,
		sleepFn:    sleepContext,
		jitterFn:   rand.Float64,
	}
}

// Run loops the transfer until the host reports completion. It returns the
// uploaded video id, or an error once a fatal fault occurs or the retry
// budget is exhausted. Retriable faults are host 5xx responses
// {500,502,503,504} and transport/network-class errors; everything else
// aborts immediately.
func (d *UploadDriver) Run(ctx context.Context, sender ChunkSender) (string, error) {
	retry := 0
	for {
		video, err := sender.NextChunk(ctx)
		if err == nil {
			if video == nil {
				// Mid-transfer, keep sending.
				continue
			}
			if video.ID == "" {
				return "", UnretriableError{errors.New("upload completed without a video id")}
			}
			glog.Infof("Video uploaded videoId=%s retries=%d", video.ID, retry)
			return video.ID, nil
		}
		if !isRetriableUploadError(err) {
			return "", fmt.Errorf("fatal upload fault: %w", err)
		}

		retry++
		metrics.UploadRetries.Inc()
		if retry > d.MaxRetries {
			return "", UnretriableError{fmt.Errorf("upload retry budget exhausted after %d attempts: %w", retry, err)}
		}
		delay := d.backoff(retry)
		glog.Warningf("Retriable upload fault retry=%d/%d sleep=%v err=%q", retry, d.MaxRetries, delay, err)
		if err := d.sleepFn(ctx, delay); err != nil {
			return "", err
		}
	}
}

func isRetriableUploadError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *clients.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Status {
		case 500, 502, 503, 504:
			return true
		}
		return false
	}
	// Anything that is not a host-level status error is a transport or
	// network-class fault and worth retrying.
	return true
}

// backoff returns a full-jitter delay uniform in [0, 2^retry) seconds,
// capped at 2^10 seconds of growth.
func (d *UploadDriver) backoff(retry int) time.Duration {
	exp := retry
	if exp > maxBackoffExp {
		exp = maxBackoffExp
	}
	window := float64(int64(1) << uint(exp))
	return time.Duration(d.jitterFn() * window * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
