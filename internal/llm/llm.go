package llm

import (
	"context"
	"slices"
	"strings"

	"contentdesk/internal/app/model"
)

type TextRequest struct {
	Topic       string           `json:"topic"`
	Tone        string           `json:"tone"`
	Platforms   []model.Platform `json:"platforms"`
	UserContext string           `json:"user_context,omitempty"`
}

// TextGenerator produces copy for every requested platform in one call.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (*model.TextBundle, error)
}

// Missing lists requested platforms that the bundle has no content for.
func Missing(bundle *model.TextBundle, requested []model.Platform) []model.Platform {
	var missing []model.Platform
	for _, p := range requested {
		if bundle == nil {
			missing = append(missing, p)
			continue
		}
		if t, ok := bundle.Platforms[p]; !ok || strings.TrimSpace(t.Content) == "" {
			missing = append(missing, p)
		}
	}
	return missing
}

func PlatformList(platforms []model.Platform) string {
	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func WantsTitle(platforms []model.Platform) bool {
	return slices.Contains(platforms, model.PlatformBlog)
}
