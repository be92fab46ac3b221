package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tagforge/api/internal/media"
	"github.com/tagforge/api/internal/model"
	"github.com/tagforge/api/internal/store"
	"github.com/tagforge/api/internal/websocket"
)

var testPNG = append([]byte("\x89PNG\r\n\x1a\n"), []byte("fake image payload")...)

// mp3Bytes is a minimal MPEG frame header repeated; enough for the tag
// writer, which never decodes audio.
var mp3Bytes = bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x64, 0x00, 0x00, 0x00, 0x00}, 4)

type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*model.Job)}
}

func (s *fakeStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeStore) DeleteJob(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *fakeStore) ListJobs(ctx context.Context, ownerID string) ([]*model.Job, error) {
	return nil, nil
}

type fakeDownloader struct {
	uploader string
	err      error
}

func (d *fakeDownloader) Download(ctx context.Context, videoURL, dir string) (*media.DownloadResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	path := filepath.Join(dir, "source.webm")
	if err := os.WriteFile(path, mp3Bytes, 0o644); err != nil {
		return nil, err
	}
	return &media.DownloadResult{Path: path, Uploader: d.uploader}, nil
}

func (d *fakeDownloader) Uploader(ctx context.Context, videoURL string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.uploader, nil
}

type fakeEncoder struct {
	err error
}

func (e *fakeEncoder) ConvertToMP3(ctx context.Context, inputPath string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	if strings.EqualFold(filepath.Ext(inputPath), ".mp3") {
		return inputPath, nil
	}
	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	if err := os.WriteFile(outputPath, mp3Bytes, 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

type fakeResolver struct {
	artwork *media.Artwork
	err     error
}

func (r *fakeResolver) Resolve(ctx context.Context, input string) (*media.Artwork, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.artwork, nil
}

func (r *fakeResolver) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	return testPNG, "image/png", nil
}

type fakeStorage struct {
	mu       sync.Mutex
	uploads  []string
	deleted  []string
	failSubs string
}

func (s *fakeStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if s.failSubs != "" && strings.Contains(key, s.failSubs) {
		return "", errors.New("storage unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, key)
	return "https://cdn.example.com/" + key, nil
}

func (s *fakeStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?signed", nil
}

func (s *fakeStorage) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

type workerEnv struct {
	store      *fakeStore
	downloader *fakeDownloader
	encoder    *fakeEncoder
	resolver   *fakeResolver
	storage    *fakeStorage
	worker     *JobWorker
}

func newWorkerEnv(t *testing.T) *workerEnv {
	t.Helper()
	env := &workerEnv{
		store:      newFakeStore(),
		downloader: &fakeDownloader{},
		encoder:    &fakeEncoder{},
		resolver:   &fakeResolver{err: media.ErrArtworkUnresolved},
		storage:    &fakeStorage{},
	}
	hub := websocket.NewHub()
	go hub.Run()
	env.worker = NewJobWorker(env.store, env.downloader, env.encoder, env.resolver, env.storage, hub, t.TempDir())
	return env
}

func (env *workerEnv) seedJob(t *testing.T, job *model.Job) {
	t.Helper()
	if err := env.store.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
}

func TestProcessJobUploadedFileSuccess(t *testing.T) {
	env := newWorkerEnv(t)
	job := &model.Job{
		ID:         "job-1",
		OwnerID:    "user-1",
		Title:      "Night Drive",
		Artist:     "The Testers",
		SourceKind: model.SourceUploadedFile,
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, mp3Bytes, "song.mp3")

	stored, err := env.store.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Completed || stored.Failed {
		t.Fatalf("expected completed job, got completed=%v failed=%v", stored.Completed, stored.Failed)
	}
	if stored.FilenameURL == nil || stored.DownloadURL == nil {
		t.Fatal("expected filename and download URLs on completion")
	}
	if *stored.FilenameURL != *stored.DownloadURL {
		t.Errorf("filename URL %q and download URL %q should match", *stored.FilenameURL, *stored.DownloadURL)
	}
	if !strings.Contains(*stored.FilenameURL, "music/job-1/night-drive.mp3") {
		t.Errorf("unexpected published URL %q", *stored.FilenameURL)
	}
	if stored.ArtworkURL != nil {
		t.Error("expected no artwork URL without artwork input")
	}
	if len(env.storage.uploads) != 1 {
		t.Fatalf("expected one uploaded object, got %v", env.storage.uploads)
	}
}

func TestProcessJobDownloadSuccessWithArtwork(t *testing.T) {
	env := newWorkerEnv(t)
	env.downloader.uploader = "Channel X"
	env.resolver = &fakeResolver{artwork: &media.Artwork{Data: testPNG, MIME: "image/png"}}
	env.worker.artwork = env.resolver

	job := &model.Job{
		ID:           "job-2",
		OwnerID:      "user-1",
		Title:        "Remote Track",
		Artist:       "Someone",
		SourceKind:   model.SourceYouTubeURL,
		SourceURL:    "https://www.youtube.com/watch?v=abc",
		ArtworkInput: "data:image/png;base64,unused-by-fake",
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, nil, "")

	stored, err := env.store.GetJob(context.Background(), "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Completed {
		t.Fatal("expected completed job")
	}
	if stored.ArtworkURL == nil || !strings.Contains(*stored.ArtworkURL, "music/job-2/artwork.png") {
		t.Errorf("unexpected artwork URL %v", stored.ArtworkURL)
	}
	if stored.Grouping != "Channel X" {
		t.Errorf("expected uploader grouping hint, got %q", stored.Grouping)
	}
	if len(env.storage.uploads) != 2 {
		t.Fatalf("expected mp3 and artwork uploads, got %v", env.storage.uploads)
	}
}

func TestProcessJobKeepsUserGrouping(t *testing.T) {
	env := newWorkerEnv(t)
	env.downloader.uploader = "Channel X"

	job := &model.Job{
		ID:         "job-3",
		OwnerID:    "user-1",
		Title:      "Remote Track",
		Artist:     "Someone",
		Grouping:   "My Mix",
		SourceKind: model.SourceVideoURL,
		SourceURL:  "https://example.com/video",
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, nil, "")

	stored, _ := env.store.GetJob(context.Background(), "job-3")
	if stored.Grouping != "My Mix" {
		t.Errorf("user grouping overwritten: got %q", stored.Grouping)
	}
}

func TestProcessJobAcquisitionFailure(t *testing.T) {
	env := newWorkerEnv(t)
	env.downloader.err = &media.AcquisitionError{URL: "https://youtu.be/abc", Err: errors.New("video unavailable")}

	job := &model.Job{
		ID:         "job-4",
		OwnerID:    "user-1",
		Title:      "Gone",
		Artist:     "Nobody",
		SourceKind: model.SourceYouTubeURL,
		SourceURL:  "https://youtu.be/abc",
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, nil, "")

	stored, _ := env.store.GetJob(context.Background(), "job-4")
	if !stored.Failed || stored.Completed {
		t.Fatalf("expected failed job, got completed=%v failed=%v", stored.Completed, stored.Failed)
	}
	if stored.FilenameURL != nil {
		t.Error("failed job must not carry a filename URL")
	}
	if len(env.storage.uploads) != 0 {
		t.Errorf("nothing should be published on acquisition failure, got %v", env.storage.uploads)
	}
}

func TestProcessJobTranscodeFailure(t *testing.T) {
	env := newWorkerEnv(t)
	env.encoder.err = &media.TranscodeError{Stderr: "invalid data", Err: errors.New("exit status 1")}

	job := &model.Job{
		ID:         "job-5",
		OwnerID:    "user-1",
		Title:      "Broken",
		Artist:     "Nobody",
		SourceKind: model.SourceUploadedFile,
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, []byte("not audio"), "clip.wav")

	stored, _ := env.store.GetJob(context.Background(), "job-5")
	if !stored.Failed {
		t.Fatal("expected failed job after transcode error")
	}
}

func TestProcessJobArtworkPublishFailureCleansUp(t *testing.T) {
	env := newWorkerEnv(t)
	env.storage.failSubs = "artwork"
	env.resolver = &fakeResolver{artwork: &media.Artwork{Data: testPNG, MIME: "image/png"}}
	env.worker.artwork = env.resolver

	job := &model.Job{
		ID:           "job-6",
		OwnerID:      "user-1",
		Title:        "Half Published",
		Artist:       "Nobody",
		SourceKind:   model.SourceUploadedFile,
		ArtworkInput: "data:image/png;base64,unused-by-fake",
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, mp3Bytes, "song.mp3")

	stored, _ := env.store.GetJob(context.Background(), "job-6")
	if !stored.Failed {
		t.Fatal("expected failed job when artwork publish fails")
	}
	if stored.FilenameURL != nil {
		t.Error("failed job must not carry a filename URL")
	}

	// The mp3 made it up before the artwork failed; the run must take it
	// back down.
	mp3Key := fmt.Sprintf("music/%s/half-published.mp3", job.ID)
	found := false
	for _, key := range env.storage.deleted {
		if key == mp3Key {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s to be deleted, deletions were %v", mp3Key, env.storage.deleted)
	}
}

func TestProcessJobArtworkUnresolvedStillCompletes(t *testing.T) {
	env := newWorkerEnv(t)

	job := &model.Job{
		ID:           "job-7",
		OwnerID:      "user-1",
		Title:        "No Cover",
		Artist:       "Nobody",
		SourceKind:   model.SourceUploadedFile,
		ArtworkInput: "https://soundcloud.com/artist/private-track",
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, mp3Bytes, "song.mp3")

	stored, _ := env.store.GetJob(context.Background(), "job-7")
	if !stored.Completed {
		t.Fatal("artwork resolution failure must not fail the pipeline")
	}
	if stored.ArtworkURL != nil {
		t.Error("expected no artwork URL")
	}
}

func TestProcessJobUnhandledSourceKind(t *testing.T) {
	env := newWorkerEnv(t)

	job := &model.Job{
		ID:         "job-8",
		OwnerID:    "user-1",
		Title:      "Odd",
		Artist:     "Nobody",
		SourceKind: model.SourceKind("carrier-pigeon"),
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, nil, "")

	stored, _ := env.store.GetJob(context.Background(), "job-8")
	if !stored.Failed {
		t.Fatal("expected failed job for unhandled source kind")
	}
}

// gatedEncoder blocks mid-pipeline so tests can interleave other work with
// a run, and signals when the run has reached it.
type gatedEncoder struct {
	entered chan struct{}
	gate    chan struct{}
}

func (e *gatedEncoder) ConvertToMP3(ctx context.Context, inputPath string) (string, error) {
	close(e.entered)
	<-e.gate
	return inputPath, nil
}

func TestProcessJobMissingRecord(t *testing.T) {
	env := newWorkerEnv(t)

	env.worker.ProcessJob(context.Background(), "no-such-job", nil, "")

	if len(env.storage.uploads) != 0 {
		t.Errorf("run without a record must not publish, got %v", env.storage.uploads)
	}
}

func TestProcessJobDeleteDuringRunDoesNotResurrect(t *testing.T) {
	env := newWorkerEnv(t)
	enc := &gatedEncoder{entered: make(chan struct{}), gate: make(chan struct{})}
	env.worker.encoder = enc

	job := &model.Job{
		ID:         "job-10",
		OwnerID:    "user-1",
		Title:      "Vanishing",
		Artist:     "Nobody",
		SourceKind: model.SourceUploadedFile,
	}
	env.seedJob(t, job)

	done := make(chan struct{})
	go func() {
		env.worker.ProcessJob(context.Background(), job.ID, mp3Bytes, "song.mp3")
		close(done)
	}()

	// Delete the record while the run is held inside the transcode step.
	<-enc.entered
	if err := env.store.DeleteJob(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}
	close(enc.gate)
	<-done

	// Deletion wins: the run must not write the record back.
	if _, err := env.store.GetJob(context.Background(), job.ID); !errors.Is(err, store.ErrJobNotFound) {
		t.Fatalf("deleted record resurrected by in-flight run, err=%v", err)
	}

	// Whatever the run published after the delete must be taken back down.
	if len(env.storage.uploads) == 0 {
		t.Fatal("expected the run to have published before noticing the delete")
	}
	deleted := make(map[string]bool)
	for _, key := range env.storage.deleted {
		deleted[key] = true
	}
	for _, key := range env.storage.uploads {
		if !deleted[key] {
			t.Errorf("published key %s was not cleaned up after delete", key)
		}
	}
}

func TestProcessJobCleansWorkDir(t *testing.T) {
	env := newWorkerEnv(t)
	workDir := env.worker.workDir

	job := &model.Job{
		ID:         "job-9",
		OwnerID:    "user-1",
		Title:      "Tidy",
		Artist:     "Nobody",
		SourceKind: model.SourceUploadedFile,
	}
	env.seedJob(t, job)

	env.worker.ProcessJob(context.Background(), job.ID, mp3Bytes, "song.mp3")

	if _, err := os.Stat(filepath.Join(workDir, job.ID)); !os.IsNotExist(err) {
		t.Errorf("expected per-job work dir to be removed, stat err=%v", err)
	}
}
