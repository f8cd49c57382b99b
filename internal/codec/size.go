package codec

import (
	"encoding/json"

	"github.com/starford/quire/internal/models"
)

// EstimateSize approximates the number of bytes v occupies once encoded as
// JSON. Values that cannot be encoded count as zero.
func EstimateSize(v any) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// Breakdown is the per-collection storage footprint of a notebook.
type Breakdown struct {
	Sources int64 `json:"sources"`
	Chat    int64 `json:"chat"`
	Outputs int64 `json:"outputs"`
	Notes   int64 `json:"notes"`
	Total   int64 `json:"total"`
}

// SizeBreakdown estimates the footprint of each collection of nb.
func SizeBreakdown(nb *models.Notebook) Breakdown {
	if nb == nil {
		return Breakdown{}
	}
	return Breakdown{
		Sources: EstimateSize(nb.Sources),
		Chat:    EstimateSize(nb.Chat),
		Outputs: EstimateSize(nb.Outputs),
		Notes:   EstimateSize(nb.Notes),
		Total:   EstimateSize(nb),
	}
}
