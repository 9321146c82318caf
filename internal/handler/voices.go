package handler

import (
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/docucast/api/internal/model"
	"github.com/docucast/api/pkg/response"
)

// VoicesHandler exposes the configured narrator voices
type VoicesHandler struct {
	voices []model.Voice
}

func NewVoicesHandler(speakers map[string]string) *VoicesHandler {
	voices := make([]model.Voice, 0, len(speakers))
	for code, ref := range speakers {
		voices = append(voices, model.Voice{Code: code, SampleRef: ref})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].Code < voices[j].Code })
	return &VoicesHandler{voices: voices}
}

// List handles GET /api/voices
func (h *VoicesHandler) List(c *fiber.Ctx) error {
	return response.OK(c, fiber.Map{"voices": h.voices})
}
