package dto

import (
	"github.com/spec-kit/evaluation-service/internal/domain"
	"github.com/spec-kit/evaluation-service/internal/orgchart"
)

// PositionResponse represents one node of the org tree.
type PositionResponse struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	ParentPositionID *string  `json:"parentPositionId"`
	IsAggregate      bool     `json:"isAggregate"`
	Holders          []string `json:"holders"`
}

// HierarchyResponse is the snapshot the publication engine derives from.
type HierarchyResponse struct {
	Positions        []PositionResponse  `json:"positions"`
	EmployeeBindings map[string][]string `json:"employeeBindings"`
	BoundEmployees   int                 `json:"boundEmployees"`
}

// NewHierarchyResponse combines the raw source with the validated snapshot.
func NewHierarchyResponse(src orgchart.Source, snap *orgchart.Snapshot) HierarchyResponse {
	resp := HierarchyResponse{
		Positions:        make([]PositionResponse, 0, len(src.Positions)),
		EmployeeBindings: make(map[string][]string, len(src.Bindings)),
		BoundEmployees:   len(snap.Employees()),
	}
	for _, p := range src.Positions {
		resp.Positions = append(resp.Positions, newPositionResponse(p, snap.Holders(p.ID)))
		if holders := snap.Holders(p.ID); len(holders) > 0 {
			resp.EmployeeBindings[p.ID] = holders
		}
	}
	return resp
}

func newPositionResponse(p domain.Position, holders []string) PositionResponse {
	if holders == nil {
		holders = []string{}
	}
	return PositionResponse{
		ID:               p.ID,
		Title:            p.Title,
		ParentPositionID: p.ParentPositionID,
		IsAggregate:      p.IsAggregate,
		Holders:          holders,
	}
}
