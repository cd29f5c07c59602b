package service

import (
	"context"

	"github.com/spec-kit/evaluation-service/internal/orgchart"
	"github.com/spec-kit/evaluation-service/internal/repository"
)

// HierarchyService exposes the org hierarchy exactly as the publication engine sees it.
type HierarchyService struct {
	org repository.OrgRepository
}

// NewHierarchyService constructs the service.
func NewHierarchyService(org repository.OrgRepository) *HierarchyService {
	return &HierarchyService{org: org}
}

// GetHierarchy returns the raw source and its validated snapshot.
func (s *HierarchyService) GetHierarchy(ctx context.Context) (orgchart.Source, *orgchart.Snapshot, error) {
	src, err := s.org.GetHierarchySnapshot(ctx)
	if err != nil {
		return orgchart.Source{}, nil, mapPgError(err, nil)
	}
	snap, err := orgchart.NewSnapshot(src)
	if err != nil {
		return orgchart.Source{}, nil, mapPublicationError(err, "")
	}
	return src, snap, nil
}
