package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/tagforge/api/internal/client"
	"github.com/tagforge/api/internal/media"
	"github.com/tagforge/api/internal/model"
	"github.com/tagforge/api/internal/store"
	"github.com/tagforge/api/internal/websocket"
)

// JobWorker executes the pipeline for one job: acquire, transcode, tag,
// publish. It is the single writer of the job record while a run executes;
// every run ends with the record in exactly one terminal state.
type JobWorker struct {
	store      store.JobStore
	downloader media.Downloader
	encoder    media.Encoder
	artwork    media.ArtworkResolver
	storage    client.StorageClient
	hub        *websocket.Hub
	workDir    string
}

// NewJobWorker creates a pipeline worker.
func NewJobWorker(
	jobStore store.JobStore,
	downloader media.Downloader,
	encoder media.Encoder,
	artwork media.ArtworkResolver,
	storage client.StorageClient,
	hub *websocket.Hub,
	workDir string,
) *JobWorker {
	return &JobWorker{
		store:      jobStore,
		downloader: downloader,
		encoder:    encoder,
		artwork:    artwork,
		storage:    storage,
		hub:        hub,
		workDir:    workDir,
	}
}

// ProcessJob runs the full pipeline for the job with the given id. The run
// fetches its own copy of the record, so callers holding the creation-time
// struct never see pipeline writes. file holds the uploaded bytes when the
// source is an upload; filename preserves its original extension. All errors
// are absorbed into the job's failed state; nothing propagates to the
// scheduler.
func (w *JobWorker) ProcessJob(ctx context.Context, jobID string, file []byte, filename string) {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("job %s: pipeline run skipped, record unavailable: %v", jobID, err)
		return
	}

	log.Printf("job %s: pipeline started (%s)", job.ID, job.SourceKind)

	dir := filepath.Join(w.workDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.failJob(job, nil, fmt.Sprintf("failed to create work dir: %v", err))
		return
	}
	defer os.RemoveAll(dir)

	// Keys uploaded by this run; deleted again if a later step fails so a
	// failed run never leaves a partial publish behind.
	var uploaded []string

	// Acquiring
	w.setStage(job.ID, model.StageAcquiring)
	audioPath, err := w.acquire(ctx, job, file, filename, dir)
	if err != nil {
		w.failJob(job, uploaded, fmt.Sprintf("acquisition failed: %v", err))
		return
	}

	// Transcoding
	w.setStage(job.ID, model.StageTranscoding)
	mp3Path, err := w.encoder.ConvertToMP3(ctx, audioPath)
	if err != nil {
		w.failJob(job, uploaded, fmt.Sprintf("transcode failed: %v", err))
		return
	}

	// Tagging
	w.setStage(job.ID, model.StageTagging)
	artworkData, artworkMIME := w.resolveArtwork(ctx, job)
	tags := &media.Tags{
		Title:       job.Title,
		Artist:      job.Artist,
		Album:       job.Album,
		Grouping:    job.Grouping,
		Artwork:     artworkData,
		ArtworkMIME: artworkMIME,
	}
	if err := media.WriteTags(mp3Path, tags); err != nil {
		w.failJob(job, uploaded, fmt.Sprintf("tagging failed: %v", err))
		return
	}

	// Publishing
	w.setStage(job.ID, model.StagePublishing)
	if w.storage == nil {
		w.failJob(job, uploaded, "publish failed: object storage not configured")
		return
	}
	mp3File, err := os.Open(mp3Path)
	if err != nil {
		w.failJob(job, uploaded, fmt.Sprintf("publish failed: %v", err))
		return
	}

	mp3Key := mp3ObjectKey(job)
	filenameURL, err := w.storage.Upload(ctx, mp3Key, mp3File, "audio/mpeg")
	mp3File.Close()
	if err != nil {
		w.failJob(job, uploaded, fmt.Sprintf("publish failed: %v", err))
		return
	}
	uploaded = append(uploaded, mp3Key)

	var artworkURL *string
	if len(artworkData) > 0 {
		artKey := artworkObjectKey(job, artworkMIME)
		u, err := w.storage.Upload(ctx, artKey, bytes.NewReader(artworkData), artworkMIME)
		if err != nil {
			w.failJob(job, uploaded, fmt.Sprintf("artwork publish failed: %v", err))
			return
		}
		uploaded = append(uploaded, artKey)
		artworkURL = &u
	}

	// Completed
	job.FilenameURL = &filenameURL
	job.DownloadURL = &filenameURL
	job.ArtworkURL = artworkURL
	job.Completed = true
	if err := w.persistIfLive(context.Background(), job); err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			// The job was deleted while this run executed. Deletion wins:
			// take the published artifacts back down and drop the record.
			log.Printf("job %s: deleted during run, discarding published artifacts", job.ID)
			w.discardUploads(uploaded)
			return
		}
		log.Printf("job %s: failed to persist completed state: %v", job.ID, err)
	}

	w.hub.BroadcastStage(job.ID, model.StageCompleted)
	w.hub.BroadcastCompleted(job.ID, job)
	log.Printf("job %s: pipeline completed", job.ID)
}

// acquire produces a local audio file for any source kind. Uploaded bytes
// are written straight to the work dir; URLs go through the downloader.
func (w *JobWorker) acquire(ctx context.Context, job *model.Job, file []byte, filename, dir string) (string, error) {
	switch job.SourceKind {
	case model.SourceUploadedFile:
		ext := filepath.Ext(filename)
		if ext == "" {
			ext = ".bin"
		}
		path := filepath.Join(dir, "source"+ext)
		if err := os.WriteFile(path, file, 0o644); err != nil {
			return "", err
		}
		return path, nil

	case model.SourceVideoURL, model.SourceYouTubeURL:
		result, err := w.downloader.Download(ctx, job.SourceURL, dir)
		if err != nil {
			return "", err
		}
		// The uploader name is a default grouping hint; explicit user
		// metadata always wins.
		if job.Grouping == "" && result.Uploader != "" {
			job.Grouping = result.Uploader
			if err := w.persistIfLive(ctx, job); err != nil {
				log.Printf("job %s: failed to persist grouping hint: %v", job.ID, err)
			}
		}
		return result.Path, nil

	default:
		return "", fmt.Errorf("unhandled source kind %q", job.SourceKind)
	}
}

// resolveArtwork turns the job's artwork input into embeddable bytes.
// Artwork is always optional: any resolution or fetch failure means the
// pipeline proceeds without it.
func (w *JobWorker) resolveArtwork(ctx context.Context, job *model.Job) ([]byte, string) {
	if job.ArtworkInput == "" {
		return nil, ""
	}

	art, err := w.artwork.Resolve(ctx, job.ArtworkInput)
	if err != nil {
		log.Printf("job %s: artwork unresolved, continuing without: %v", job.ID, err)
		return nil, ""
	}

	if len(art.Data) > 0 {
		return art.Data, art.MIME
	}

	data, mime, err := w.artwork.FetchImage(ctx, art.URL)
	if err != nil {
		log.Printf("job %s: artwork fetch failed, continuing without: %v", job.ID, err)
		return nil, ""
	}
	return data, mime
}

// failJob deletes anything this run already published, then records the
// terminal failed state. The background context keeps the terminal write
// from being lost to a canceled run context.
func (w *JobWorker) failJob(job *model.Job, uploaded []string, reason string) {
	w.discardUploads(uploaded)

	job.Failed = true
	if err := w.persistIfLive(context.Background(), job); err != nil {
		log.Printf("job %s: failed-state write skipped: %v", job.ID, err)
	}

	w.hub.BroadcastFailed(job.ID, reason)
	log.Printf("job %s: pipeline failed: %s", job.ID, reason)
}

// persistIfLive writes job only while its record still exists and is not
// soft-deleted. A run must never resurrect a record that deletion removed
// out from under it.
func (w *JobWorker) persistIfLive(ctx context.Context, job *model.Job) error {
	current, err := w.store.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	if current.DeletedAt != nil {
		return store.ErrJobNotFound
	}
	return w.store.UpdateJob(ctx, job)
}

// discardUploads best-effort deletes keys this run published.
func (w *JobWorker) discardUploads(uploaded []string) {
	if w.storage == nil {
		return
	}
	ctx := context.Background()
	for _, key := range uploaded {
		if err := w.storage.Delete(ctx, key); err != nil {
			log.Printf("failed to delete partial artifact %s: %v", key, err)
		}
	}
}

func (w *JobWorker) setStage(jobID string, stage model.Stage) {
	w.hub.BroadcastStage(jobID, stage)
	log.Printf("job %s: %s", jobID, stage)
}

func mp3ObjectKey(job *model.Job) string {
	return fmt.Sprintf("music/%s/%s.mp3", job.ID, slugify(job.Title))
}

func artworkObjectKey(job *model.Job, mime string) string {
	ext := ".jpg"
	if strings.Contains(mime, "png") {
		ext = ".png"
	}
	return fmt.Sprintf("music/%s/artwork%s", job.ID, ext)
}

// slugify reduces a title to a storage-safe object name.
func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "track"
	}
	return slug
}
