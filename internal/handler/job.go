package handler

import (
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tagforge/api/internal/middleware"
	"github.com/tagforge/api/internal/model"
	"github.com/tagforge/api/internal/service"
	"github.com/tagforge/api/internal/store"
	"github.com/tagforge/api/pkg/response"
)

const maxUploadSize = 100 * 1024 * 1024 // 100MB

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewJobHandler(svc *service.JobService, v *validator.Validate) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/music/jobs
//
// Multipart form: title, artist, album, grouping, artworkUrl, and exactly
// one of file | videoUrl | youtubeUrl. Returns 201 with the pending job
// immediately; the pipeline outcome is observed by polling or WebSocket.
func (h *JobHandler) Create(c *fiber.Ctx) error {
	req := model.CreateJobRequest{
		OwnerID:    middleware.GetUserID(c),
		Title:      c.FormValue("title"),
		Artist:     c.FormValue("artist"),
		Album:      c.FormValue("album"),
		Grouping:   c.FormValue("grouping"),
		VideoURL:   c.FormValue("videoUrl"),
		YouTubeURL: c.FormValue("youtubeUrl"),
		ArtworkURL: c.FormValue("artworkUrl"),
	}

	if fileHeader, err := c.FormFile("file"); err == nil {
		if fileHeader.Size > maxUploadSize {
			return response.ValidationError(c, "File size exceeds 100MB limit", map[string]interface{}{
				"maxSize":  maxUploadSize,
				"fileSize": fileHeader.Size,
			})
		}

		f, err := fileHeader.Open()
		if err != nil {
			return response.ServiceError(c, "Failed to open file")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return response.ServiceError(c, "Failed to read file")
		}
		req.File = data
		req.Filename = fileHeader.Filename
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.service.CreateJob(c.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSourceCombination),
			errors.Is(err, service.ErrInvalidYouTubeURL),
			errors.Is(err, service.ErrInvalidArtworkURL):
			return response.ValidationError(c, err.Error(), nil)
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.Created(c, job)
}

// Get handles GET /api/music/jobs/:jobId
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetJob(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, job)
}

// List handles GET /api/music/jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	jobs, err := h.service.ListJobs(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.JobListResponse{Jobs: jobs})
}

// Delete handles DELETE /api/music/jobs/:jobId
func (h *JobHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	err := h.service.DeleteJob(c.Context(), middleware.GetUserID(c), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
