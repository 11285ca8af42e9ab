package store

import (
	"fmt"

	"github.com/pavelanni/speakeval/internal/model"
)

// ExportAll builds export-ready details for every finalized test, in the
// same ranked order as ListResults.
func (s *Store) ExportAll() ([]model.TestDetail, error) {
	summaries, err := s.ListResults()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	var details []model.TestDetail
	for _, ts := range summaries {
		d, err := s.GetResult(ts.ID)
		if err != nil {
			return nil, fmt.Errorf("get result %d: %w", ts.ID, err)
		}
		details = append(details, d)
	}
	return details, nil
}
