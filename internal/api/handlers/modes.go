package handlers

import (
	"log"
	"net/http"

	"decay-fit/internal/api/models"
	"decay-fit/internal/config"
	"decay-fit/internal/model"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// ListModes handles GET /api/v1/modes
func ListModes(c *gin.Context) {
	spec := model.DefaultParameterSpec()
	modes := []models.ModeInfo{
		{
			Name:        string(model.FreeBaseline),
			Description: "y = y0 + A*exp(-(t-t0)/t1); baseline, amplitude and decay time are fitted.",
			Parameters:  parameterNames(spec, model.FreeBaseline),
		},
		{
			Name:        string(model.FixedBaseline),
			Description: "y = A*exp(-(t-t0)/t1); baseline clamped to 0.",
			Parameters:  parameterNames(spec, model.FixedBaseline),
		},
	}

	raw, err := yaml.Marshal(config.Default())
	if err != nil {
		log.Printf("[api] marshal default config: %v", err)
	}
	c.JSON(http.StatusOK, models.ModesResponse{
		Modes:         modes,
		Presets:       config.PresetNames(),
		DefaultConfig: string(raw),
	})
}

func parameterNames(spec model.ParameterSpec, mode model.FitMode) []string {
	var out []string
	for _, r := range mode.Roles() {
		out = append(out, spec.Canonical(r))
	}
	return out
}
