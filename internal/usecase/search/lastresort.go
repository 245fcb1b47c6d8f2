package search

import (
	"context"

	"github.com/kailas-cloud/jobfed/internal/domain/profile"
	"github.com/kailas-cloud/jobfed/internal/domain/query"
	"github.com/kailas-cloud/jobfed/internal/domain/record"
)

// NoopLastResort is the default LastResort. It never produces postings; the
// generative slot is left empty until a real generator is plugged in.
type NoopLastResort struct{}

// Generate returns no records.
func (NoopLastResort) Generate(context.Context, query.Spec, *profile.Weights) ([]record.Raw, error) {
	return nil, nil
}
