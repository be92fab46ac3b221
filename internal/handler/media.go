package handler

import (
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tagforge/api/internal/media"
	"github.com/tagforge/api/internal/service"
	"github.com/tagforge/api/pkg/response"
)

// MediaHandler serves the metadata helper endpoints: grouping suggestions,
// artwork preview resolution and tag extraction from uploaded audio.
type MediaHandler struct {
	service   *service.JobService
	validator *validator.Validate
}

func NewMediaHandler(svc *service.JobService, v *validator.Validate) *MediaHandler {
	return &MediaHandler{
		service:   svc,
		validator: v,
	}
}

// Grouping handles GET /api/music/grouping?videoUrl=
func (h *MediaHandler) Grouping(c *fiber.Ctx) error {
	videoURL := c.Query("videoUrl")
	if videoURL == "" {
		return response.ValidationError(c, "videoUrl is required", nil)
	}

	result, err := h.service.GetGrouping(c.Context(), videoURL)
	if err != nil {
		return response.ValidationError(c, "Unable to read uploader from video", nil)
	}

	return response.OK(c, result)
}

// Artwork handles GET /api/music/artwork?artworkUrl=
func (h *MediaHandler) Artwork(c *fiber.Ctx) error {
	artworkURL := c.Query("artworkUrl")
	if artworkURL == "" {
		return response.ValidationError(c, "artworkUrl is required", nil)
	}

	result, err := h.service.ResolveArtwork(c.Context(), artworkURL)
	if err != nil {
		if errors.Is(err, media.ErrArtworkUnresolved) {
			return response.NotFound(c, "Artwork could not be resolved")
		}
		return response.ValidationError(c, err.Error(), nil)
	}

	return response.OK(c, result)
}

// Tags handles POST /api/music/tags
func (h *MediaHandler) Tags(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	f, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}

	return response.OK(c, h.service.ExtractTags(data))
}
