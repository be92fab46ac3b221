package e2e

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tagforge/api/internal/auth"
	"github.com/tagforge/api/internal/handler"
	"github.com/tagforge/api/internal/media"
	"github.com/tagforge/api/internal/middleware"
	"github.com/tagforge/api/internal/scheduler"
	"github.com/tagforge/api/internal/service"
	"github.com/tagforge/api/internal/store"
	"github.com/tagforge/api/internal/websocket"
	"github.com/tagforge/api/internal/worker"
)

const testJWTSecret = "e2e-test-secret"

var mp3Bytes = bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x64, 0x00}, 64)

// stubDownloader stands in for yt-dlp so the pipeline runs without network
// access or external binaries.
type stubDownloader struct {
	uploader string
	err      error
}

func (d *stubDownloader) Download(ctx context.Context, videoURL, dir string) (*media.DownloadResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	path := filepath.Join(dir, "source.webm")
	if err := os.WriteFile(path, mp3Bytes, 0o644); err != nil {
		return nil, err
	}
	return &media.DownloadResult{Path: path, Uploader: d.uploader}, nil
}

func (d *stubDownloader) Uploader(ctx context.Context, videoURL string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return d.uploader, nil
}

type stubEncoder struct{}

func (stubEncoder) ConvertToMP3(ctx context.Context, inputPath string) (string, error) {
	if strings.EqualFold(filepath.Ext(inputPath), ".mp3") {
		return inputPath, nil
	}
	outputPath := strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".mp3"
	if err := os.WriteFile(outputPath, mp3Bytes, 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, input string) (*media.Artwork, error) {
	if strings.Contains(input, "unresolved") {
		return nil, media.ErrArtworkUnresolved
	}
	return &media.Artwork{URL: input}, nil
}

func (stubResolver) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	return []byte("\x89PNG\r\n\x1a\nimg"), "image/png", nil
}

type stubStorage struct {
	mu      sync.Mutex
	uploads []string
	deleted []string
}

func (s *stubStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, key)
	return "https://cdn.example.com/" + key, nil
}

func (s *stubStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *stubStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://cdn.example.com/" + key + "?signed", nil
}

func (s *stubStorage) GetPublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (s *stubStorage) deletedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

type testEnv struct {
	app     *fiber.App
	storage *stubStorage
}

// setupApp wires the full HTTP surface against a local Redis, with stubbed
// media components so pipelines run quickly and offline. Skips when Redis
// is not running.
func setupApp(t *testing.T) *testEnv {
	t.Helper()

	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	redisClient.FlushDB(context.Background())
	t.Cleanup(func() {
		redisClient.FlushDB(context.Background())
		redisClient.Close()
	})

	validate := validator.New()

	hub := websocket.NewHub()
	go hub.Run()

	storage := &stubStorage{}
	downloader := &stubDownloader{uploader: "Channel X"}

	jobStore := store.NewRedisJobStore(redisClient)
	sched := scheduler.New(20 * time.Millisecond)
	sched.Start()
	t.Cleanup(func() {
		if err := sched.Stop(2 * time.Second); err != nil {
			t.Logf("scheduler stop: %v", err)
		}
	})

	jobWorker := worker.NewJobWorker(jobStore, downloader, stubEncoder{}, stubResolver{}, storage, hub, t.TempDir())
	jobService := service.NewJobService(jobStore, sched, jobWorker, stubResolver{}, downloader, storage)

	jobHandler := handler.NewJobHandler(jobService, validate)
	mediaHandler := handler.NewMediaHandler(jobService, validate)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 100 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())
	music := api.Group("/music")
	music.Post("/jobs", rateLimiter.CreateJobLimit(1000), jobHandler.Create)
	music.Get("/jobs", jobHandler.List)
	music.Get("/jobs/:jobId", jobHandler.Get)
	music.Delete("/jobs/:jobId", jobHandler.Delete)

	metadata := music.Group("", rateLimiter.MetadataLimit(1000))
	metadata.Get("/grouping", mediaHandler.Grouping)
	metadata.Get("/artwork", mediaHandler.Artwork)
	metadata.Post("/tags", mediaHandler.Tags)

	return &testEnv{app: app, storage: storage}
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, userID+"@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return "Bearer " + token
}

// jobForm builds the multipart body of a job-creation request.
func jobForm(t *testing.T, fields map[string]string, file []byte, filename string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(file); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return body, w.FormDataContentType()
}

var errPollTimeout = errors.New("poll timed out")
