package cache

import (
	"context"

	"github.com/raaihank/text-anonymizer/internal/entity"
)

// Detector is the semantic detection capability being cached
type Detector interface {
	Detect(ctx context.Context, text, lang string) *entity.Set
	Languages() []string
}

// Stats represents cache performance statistics
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Errors      int64   `json:"errors"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}
