package handler

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/docucast/api/internal/model"
	"github.com/docucast/api/internal/service"
	"github.com/docucast/api/internal/store"
	"github.com/docucast/api/pkg/response"
)

type PodcastHandler struct {
	service   *service.PodcastService
	validator *validator.Validate
	maxUpload int64
}

func NewPodcastHandler(svc *service.PodcastService, v *validator.Validate, maxUploadBytes int64) *PodcastHandler {
	return &PodcastHandler{
		service:   svc,
		validator: v,
		maxUpload: maxUploadBytes,
	}
}

// Generate handles POST /api/podcast/generate. The document arrives as the
// multipart file field "document"; title and language are optional form
// fields. A valid submission is accepted immediately with a pending job.
func (h *PodcastHandler) Generate(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("document")
	if err != nil {
		return response.ValidationError(c, "Document file is required", nil)
	}
	if fileHeader.Size > h.maxUpload {
		return response.ValidationError(c,
			fmt.Sprintf("Document exceeds the %d MB upload limit", h.maxUpload/(1024*1024)), nil)
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/pdf") {
		return response.ValidationError(c, "Only PDF documents are supported", nil)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Could not read uploaded document")
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		return response.ServiceError(c, "Could not read uploaded document")
	}

	req := model.GenerateRequest{
		Title:    c.FormValue("title"),
		Language: c.FormValue("language"),
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Generate(c.Context(), document, fileHeader.Filename, &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			return response.ValidationError(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/podcast/status/:jobId
func (h *PodcastHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/podcast/result/:jobId. A completed job streams
// the episode audio; anything else reports why there is no result.
func (h *PodcastHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	audio, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, service.ErrNotReady):
			return response.NotReady(c, "Episode is not ready yet")
		case errors.Is(err, service.ErrJobFailed):
			return response.JobFailed(c, "Episode generation failed", failureDetails(c, h.service, jobID))
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.wav"`, jobID))
	return c.Send(audio)
}

// Script handles GET /api/podcast/script/:jobId
func (h *PodcastHandler) Script(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetScript(c.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, service.ErrNotReady):
			return response.NotReady(c, "Script has not been generated yet")
		default:
			return response.ServiceError(c, err.Error())
		}
	}

	return response.OK(c, result)
}

// failureDetails fetches the stored error of a failed job for the response
// body. Best effort; the 502 stands on its own.
func failureDetails(c *fiber.Ctx, svc *service.PodcastService, jobID string) interface{} {
	status, err := svc.GetStatus(c.Context(), jobID)
	if err != nil || status.Error == nil {
		return nil
	}
	return status.Error
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
