package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ComparisonRun is a saved comparison: the prompts that were sent and the
// settled result of every pair
type ComparisonRun struct {
	ID           uuid.UUID           `json:"id" db:"id"`
	TestName     string              `json:"test_name" db:"test_name"`
	SystemPrompt string              `json:"system_prompt" db:"system_prompt"`
	UserPrompt   string              `json:"user_prompt" db:"user_prompt"`
	Parameters   *AdvancedParameters `json:"parameters,omitempty" db:"parameters"`
	Results      []ComparisonResult  `json:"results" db:"-"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ComparisonRun model
func (ComparisonRun) TableName() string {
	return "comparison_runs"
}

// NewComparisonRun creates a new ComparisonRun instance
func NewComparisonRun(testName, systemPrompt, userPrompt string, params *AdvancedParameters, results []ComparisonResult) *ComparisonRun {
	copied := make([]ComparisonResult, len(results))
	copy(copied, results)
	return &ComparisonRun{
		ID:           uuid.New(),
		TestName:     testName,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Parameters:   params,
		Results:      copied,
		CreatedAt:    time.Now().UTC(),
	}
}

// ParametersJSON encodes the parameters for storage; nil parameters encode as NULL
func (r *ComparisonRun) ParametersJSON() ([]byte, error) {
	if r.Parameters.IsEmpty() {
		return nil, nil
	}
	return json.Marshal(r.Parameters)
}

// SuccessCount returns how many results settled successfully
func (r *ComparisonRun) SuccessCount() int {
	n := 0
	for i := range r.Results {
		if r.Results[i].Status == ResultStatusSuccess {
			n++
		}
	}
	return n
}
