package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/TaiBIF/camera-trap/clients"
	"github.com/TaiBIF/camera-trap/metrics"
)

const globalJobTimeout = 30 * time.Minute

// Config is the explicit process configuration handed into the runner.
// Components never read ambient global state.
type Config struct {
	SrcBucket      string
	DownloadDir    string
	WatchURLPrefix string
	EndpointMMA    string
	EndpointMMM    string

	VideoCategoryID string
	VideoPrivacy    string
}

// VideoHostAPI is everything the pipeline needs from the video host.
type VideoHostAPI interface {
	VideoSearcher
	PlaylistAPI
	StartUpload(media io.ReaderAt, size int64, meta clients.UploadMetadata) ChunkSender
}

// CatalogQuerier is the metadata catalog's read surface, consulted as an
// advisory pre-check before the authoritative host search.
type CatalogQuerier interface {
	QueryMultimedia(ctx context.Context, query clients.MultimediaQuery) ([]clients.MultimediaRecord, error)
}

// Ack is the uniform acknowledgment returned to the triggering system. It
// is success-shaped regardless of internal outcome so the trigger never
// redelivers; failures are diagnosed from logs.
type Ack struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func successAck() Ack {
	return Ack{StatusCode: 200, Body: "Success"}
}

type Runner interface {
	Start() error
	Shutdown(ctx context.Context) error
	HandleObjectCreated(ctx context.Context, body []byte) Ack
}

type RunnerOptions struct {
	AMQPUri      string
	ExchangeName string
	QueueName    string

	Config Config

	VideoHost *clients.VideoHost
	Catalog   *clients.Catalog
	Store     BlobStore
}

func NewRunner(opts RunnerOptions) Runner {
	r := &runner{
		RunnerOptions: opts,
		host:          hostAdapter{opts.VideoHost},
		store:         opts.Store,
		uploader:      NewUploadDriver(),
		probeFn:       ProbeFile,
	}
	if opts.Catalog != nil {
		r.catalog = opts.Catalog
	}
	r.emitter = &RecordEmitter{
		Store:       opts.Store,
		Bucket:      opts.Config.SrcBucket,
		EndpointMMA: opts.Config.EndpointMMA,
		EndpointMMM: opts.Config.EndpointMMM,
	}
	return r
}

type runner struct {
	RunnerOptions

	host     VideoHostAPI
	catalog  CatalogQuerier
	store    BlobStore
	emitter  *RecordEmitter
	uploader *UploadDriver
	probeFn  func(ctx context.Context, localPath string) (*MediaInfo, error)

	conn    *amqp.Connection
	channel *amqp.Channel
}

// hostAdapter narrows the concrete video host client to the pipeline's
// interfaces.
type hostAdapter struct {
	*clients.VideoHost
}

func (a hostAdapter) StartUpload(media io.ReaderAt, size int64, meta clients.UploadMetadata) ChunkSender {
	return a.VideoHost.NewResumableUpload(media, size, meta)
}

func (r *runner) Start() error {
	if r.conn != nil {
		return errors.New("runner already started")
	}
	conn, err := amqp.Dial(r.AMQPUri)
	if err != nil {
		return fmt.Errorf("error connecting to AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("error opening AMQP channel: %w", err)
	}
	err = channel.ExchangeDeclare(r.ExchangeName, "topic", true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("error ensuring bucket notification exchange exists: %w", err)
	}
	_, err = channel.QueueDeclare(r.QueueName, true, false, false, false, amqp.Table{"x-queue-type": "quorum"})
	if err != nil {
		conn.Close()
		return fmt.Errorf("error declaring ingest queue: %w", err)
	}
	err = channel.QueueBind(r.QueueName, "bucket.created.#", r.ExchangeName, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("error binding ingest queue: %w", err)
	}
	deliveries, err := channel.Consume(r.QueueName, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return fmt.Errorf("error consuming queue: %w", err)
	}

	r.conn, r.channel = conn, channel
	go r.consumeLoop(deliveries)
	return nil
}

func (r *runner) consumeLoop(deliveries <-chan amqp.Delivery) {
	for msg := range deliveries {
		ctx, cancel := context.WithTimeout(context.Background(), globalJobTimeout)
		ack := r.HandleObjectCreated(ctx, msg.Body)
		cancel()
		glog.V(4).Infof("Notification handled ack=%+v", ack)
		// Always ack: failed jobs are not redelivered (at-most-once).
		if err := msg.Ack(false); err != nil {
			glog.Errorf("Error acking notification err=%q", err)
		}
	}
}

func (r *runner) Shutdown(ctx context.Context) error {
	if r.conn == nil {
		return errors.New("runner not started")
	}
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// HandleObjectCreated runs one ingest job for an object-created
// notification. All downstream faults are contained here: they are logged
// with enough context to diagnose after the fact, and the trigger always
// receives a success-shaped acknowledgment.
func (r *runner) HandleObjectCreated(ctx context.Context, body []byte) Ack {
	jobID := uuid.NewString()
	glog.Infof("Ingest job starting jobId=%s event=%q", jobID, body)
	if err := r.process(ctx, jobID, body); err != nil {
		glog.Errorf("Ingest job failed jobId=%s unretriable=%v err=%q", jobID, IsUnretriable(err), err)
		metrics.JobsProcessed.WithLabelValues("error").Inc()
	} else {
		metrics.JobsProcessed.WithLabelValues("success").Inc()
	}
	return successAck()
}

func (r *runner) process(ctx context.Context, jobID string, body []byte) error {
	evt, err := ParseObjectCreated(body)
	if err != nil {
		return err
	}
	sessionID, fileName, err := SplitObjectKey(evt.Key)
	if err != nil {
		return err
	}
	glog.Infof("Processing object jobId=%s sessionId=%s file=%q key=%q", jobID, sessionID, fileName, evt.Key)

	rawTags, err := r.store.ReadTags(ctx, r.Config.SrcBucket, evt.Key)
	if err != nil {
		return err
	}
	tags := NewUploadTags(rawTags)

	localPath := filepath.Join(r.Config.DownloadDir, fileName)
	if err := r.store.Download(ctx, r.Config.SrcBucket, evt.Key, localPath); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(localPath); err != nil {
			glog.Warningf("Error removing downloaded file=%q err=%q", localPath, err)
		}
	}()

	media, err := r.probeFn(ctx, localPath)
	if err != nil {
		return err
	}

	fp := NewFingerprint(tags.Hierarchy(), fileName, media.CaptureTime)
	glog.Infof("Fingerprint computed jobId=%s sessionId=%s file=%q fingerprint=%s relocatedKey=%q",
		jobID, sessionID, fileName, fp.Digest, fp.RelocatedKey)

	r.consultCatalog(ctx, fileName, fp)

	videoID, found, err := FindExistingVideo(ctx, r.host, fp.Digest)
	if err != nil {
		return err
	}
	if found {
		glog.Infof("Video already uploaded, skipping upload jobId=%s fingerprint=%s videoId=%s", jobID, fp.Digest, videoID)
	} else {
		videoID, err = r.upload(ctx, localPath, fileName, tags, fp)
		if err != nil {
			return err
		}
	}

	playlistID, err := ResolvePlaylist(ctx, r.host, tags.CameraLocation)
	if err != nil {
		return err
	}
	// Link failure is non-fatal: the video is already uploaded and records
	// must still be emitted for it.
	LinkVideo(ctx, r.host, playlistID, videoID)

	return r.emitter.Emit(ctx, RecordInputs{
		Fingerprint: fp,
		Tags:        tags,
		Media:       media,
		SessionID:   sessionID,
		FileName:    fileName,
		WatchURL:    r.Config.WatchURLPrefix + videoID,
		PlaylistID:  playlistID,
	})
}

// consultCatalog is an advisory lookup against the metadata catalog. It
// only logs; the host search remains the authoritative duplicate guard.
func (r *runner) consultCatalog(ctx context.Context, fileName string, fp Fingerprint) {
	if r.catalog == nil {
		return
	}
	records, err := r.catalog.QueryMultimedia(ctx, clients.MultimediaQuery{
		UploadedFileName:          fileName,
		DateTimeOriginalTimestamp: fp.CorrectedTime.Unix(),
		FullCameraLocationMd5:     fp.LocationDigest,
	})
	if err != nil {
		glog.Warningf("Catalog query failed file=%q fingerprint=%s err=%q", fileName, fp.Digest, err)
		return
	}
	if len(records) > 0 {
		glog.Infof("Catalog already holds a record file=%q fingerprint=%s url=%q", fileName, fp.Digest, records[0].URL)
	}
}

func (r *runner) upload(ctx context.Context, localPath, fileName string, tags UploadTags, fp Fingerprint) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("error opening downloaded file: %w", err)
	}
	defer file.Close()
	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("error reading downloaded file info: %w", err)
	}

	sender := r.host.StartUpload(file, stat.Size(), clients.UploadMetadata{
		Title:       fp.Digest,
		Description: fileName,
		Tags:        tags.Values(),
		CategoryID:  r.Config.VideoCategoryID,
		Privacy:     r.Config.VideoPrivacy,
	})
	start := time.Now()
	videoID, err := r.uploader.Run(ctx, sender)
	if err != nil {
		return "", err
	}
	metrics.UploadDuration.Observe(time.Since(start).Seconds())
	return videoID, nil
}
