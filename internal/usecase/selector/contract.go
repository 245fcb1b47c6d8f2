package selector

import "github.com/kailas-cloud/jobfed/internal/domain/source"

// Registry is the read side of the source catalog the selector needs.
type Registry interface {
	IsEnabled(id string) bool
	ByTier(t source.Tier) []string
}
