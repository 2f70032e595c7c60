package domain

import "time"

// SummaryVector is an embedded narrative. An empty Embedding marks a summary
// whose embedding failed; it is kept for audit but never matched.
type SummaryVector struct {
	ID          string    `json:"id"`
	EmployeeID  string    `json:"employeeId"`
	SummaryText string    `json:"summaryText"`
	Embedding   []float32 `json:"-"`
	Timestamp   time.Time `json:"timestamp"`
}

// HasEmbedding reports whether the vector can take part in similarity search.
func (v *SummaryVector) HasEmbedding() bool {
	return len(v.Embedding) > 0
}

// SummaryMatch is one similarity search hit.
type SummaryMatch struct {
	EmployeeID  string    `json:"employeeId"`
	SummaryText string    `json:"summary"`
	Timestamp   time.Time `json:"timestamp"`
	Similarity  float64   `json:"similarity"`
}
