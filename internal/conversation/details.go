package conversation

import "github.com/myrjola/directorscut/internal/models"

// RecordDetail returns a copy of details with text stored under stage when stage is a detail stage. An existing
// entry for the same stage is overwritten. details is never modified.
func RecordDetail(details models.DetailMap, stage models.Stage, text string) models.DetailMap {
	updated := details.Clone()
	if _, ok := stage.DetailIndex(); ok {
		updated[stage] = text
	}
	return updated
}
