package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tagforge/api/internal/media"
	"github.com/tagforge/api/internal/model"
	"github.com/tagforge/api/internal/scheduler"
	"github.com/tagforge/api/internal/store"
	"github.com/tagforge/api/internal/worker"
)

// Validation failures surfaced synchronously at creation time. Jobs that
// trip these are never created; everything that goes wrong later lands on
// the job record asynchronously instead.
var (
	ErrInvalidSourceCombination = errors.New("exactly one of file, videoUrl or youtubeUrl must be provided")
	ErrInvalidYouTubeURL        = errors.New("invalid youtube url")
	ErrInvalidArtworkURL        = errors.New("artwork url is not a reachable image")
)

// StorageDeleter is the slice of the storage client the service needs for
// artifact cleanup on job deletion.
type StorageDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Submitter accepts pipeline runs as background units of work.
type Submitter interface {
	Submit(unit scheduler.Unit)
}

// JobService owns job creation, reads and deletion. Creation validates
// synchronously, persists the pending record, hands the pipeline run to the
// scheduler and returns immediately.
type JobService struct {
	store      store.JobStore
	submitter  Submitter
	worker     *worker.JobWorker
	resolver   media.ArtworkResolver
	downloader media.Downloader
	storage    StorageDeleter
}

// NewJobService creates a new job service.
func NewJobService(
	jobStore store.JobStore,
	submitter Submitter,
	jobWorker *worker.JobWorker,
	resolver media.ArtworkResolver,
	downloader media.Downloader,
	storage StorageDeleter,
) *JobService {
	return &JobService{
		store:      jobStore,
		submitter:  submitter,
		worker:     jobWorker,
		resolver:   resolver,
		downloader: downloader,
		storage:    storage,
	}
}

// CreateJob validates the request, persists a pending job and submits its
// pipeline run. The returned job is always pending, never terminal.
func (s *JobService) CreateJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	kind, sourceURL, err := resolveSource(req)
	if err != nil {
		return nil, err
	}

	if err := s.validateArtworkInput(ctx, req.ArtworkURL); err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:           uuid.New().String(),
		OwnerID:      req.OwnerID,
		Title:        req.Title,
		Artist:       req.Artist,
		Album:        req.Album,
		Grouping:     req.Grouping,
		SourceKind:   kind,
		SourceURL:    sourceURL,
		ArtworkInput: req.ArtworkURL,
		CreatedAt:    time.Now(),
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	// The run gets the id, not the struct; the record returned to the
	// caller stays pending no matter how fast the pipeline finishes.
	jobID := job.ID
	file := req.File
	filename := req.Filename
	s.submitter.Submit(func(ctx context.Context) {
		s.worker.ProcessJob(ctx, jobID, file, filename)
	})

	return job, nil
}

// GetJob returns the owner's job by id. Soft-deleted records and other
// owners' jobs read as not found.
func (s *JobService) GetJob(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID || job.DeletedAt != nil {
		return nil, store.ErrJobNotFound
	}
	return job, nil
}

// ListJobs returns the owner's jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, ownerID string) ([]*model.Job, error) {
	return s.store.ListJobs(ctx, ownerID)
}

// DeleteJob removes a job and every artifact it published. The record is
// soft-deleted first so listings stop showing it while artifacts go away;
// a dangling published URL after deletion would be a correctness bug.
func (s *JobService) DeleteJob(ctx context.Context, ownerID, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.OwnerID != ownerID {
		return store.ErrJobNotFound
	}

	now := time.Now()
	job.DeletedAt = &now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job deleted: %w", err)
	}

	for _, artifactURL := range []*string{job.FilenameURL, job.ArtworkURL} {
		if artifactURL == nil {
			continue
		}
		key, ok := objectKeyFromURL(*artifactURL)
		if !ok {
			continue
		}
		if err := s.storage.Delete(ctx, key); err != nil {
			// Record stays soft-deleted so the delete can be retried.
			return fmt.Errorf("failed to delete artifact %s: %w", key, err)
		}
	}

	return s.store.DeleteJob(ctx, jobID)
}

// GetGrouping probes a video URL's uploader name as a grouping suggestion.
func (s *JobService) GetGrouping(ctx context.Context, videoURL string) (*model.GroupingResponse, error) {
	uploader, err := s.downloader.Uploader(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	return &model.GroupingResponse{Grouping: uploader}, nil
}

// ResolveArtwork resolves an artwork reference for client preview.
func (s *JobService) ResolveArtwork(ctx context.Context, input string) (*model.ArtworkResponse, error) {
	art, err := s.resolver.Resolve(ctx, input)
	if err != nil {
		return nil, err
	}
	if art.URL == "" {
		return nil, media.ErrArtworkUnresolved
	}
	return &model.ArtworkResponse{ArtworkURL: art.URL}, nil
}

// ExtractTags reads embedded tags from uploaded audio bytes. Untagged input
// comes back with every field absent; artwork is returned as a data URI.
func (s *JobService) ExtractTags(file []byte) *model.TagsResponse {
	tags := media.ExtractTags(bytes.NewReader(file))

	resp := &model.TagsResponse{
		Title:    tags.Title,
		Artist:   tags.Artist,
		Album:    tags.Album,
		Grouping: tags.Grouping,
	}
	if len(tags.Artwork) > 0 {
		resp.Artwork = fmt.Sprintf("data:%s;base64,%s", tags.ArtworkMIME, base64.StdEncoding.EncodeToString(tags.Artwork))
	}
	return resp
}

// resolveSource enforces the exactly-one-source rule and returns the closed
// source kind, so the pipeline never sees an unhandled combination.
func resolveSource(req *model.CreateJobRequest) (model.SourceKind, string, error) {
	count := 0
	if len(req.File) > 0 {
		count++
	}
	if req.VideoURL != "" {
		count++
	}
	if req.YouTubeURL != "" {
		count++
	}
	if count != 1 {
		return "", "", ErrInvalidSourceCombination
	}

	switch {
	case len(req.File) > 0:
		return model.SourceUploadedFile, "", nil
	case req.YouTubeURL != "":
		if !isYouTubeURL(req.YouTubeURL) {
			return "", "", ErrInvalidYouTubeURL
		}
		return model.SourceYouTubeURL, req.YouTubeURL, nil
	default:
		return model.SourceVideoURL, req.VideoURL, nil
	}
}

func isYouTubeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com"
}

// validateArtworkInput fails fast on a direct image URL that does not serve
// an image. Base64 payloads and source page URLs resolve later in the
// pipeline, where failure just means no artwork.
func (s *JobService) validateArtworkInput(ctx context.Context, input string) error {
	if input == "" || strings.HasPrefix(input, "data:") {
		return nil
	}

	u, err := url.Parse(input)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		// Possibly bare base64; the resolver decides in the pipeline.
		return nil
	}
	if strings.HasSuffix(u.Hostname(), "soundcloud.com") {
		return nil
	}

	if _, err := s.resolver.Resolve(ctx, input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArtworkURL, err)
	}
	return nil
}

// objectKeyFromURL recovers the storage key from a published URL; every key
// this service publishes lives under music/.
func objectKeyFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	path := strings.TrimPrefix(u.Path, "/")
	idx := strings.Index(path, "music/")
	if idx < 0 {
		return "", false
	}
	return path[idx:], true
}
