package enrichment

import (
	"fmt"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// Fallback returns the deterministic analysis applied when the
// provider is unreachable, times out, or is not configured. The text
// stays generic so operators can tell it apart from real analysis at
// a glance.
func Fallback(incident *models.Incident) Analysis {
	return Analysis{
		Summary: fmt.Sprintf("%s (severity %s) detected; monitoring conditions while awaiting operator review.",
			incident.Type, incident.Severity),
		Cause:          "Automatic detection based on sensor anomalies.",
		Recommendation: "Verify camera feeds, dispatch response crew, and update signage as needed.",
	}
}
