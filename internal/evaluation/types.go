package evaluation

// QueryResult contains metrics for a single query.
type QueryResult struct {
	QueryID string  `json:"query_id"`
	AP      float64 `json:"ap"`
	NDCG    float64 `json:"ndcg"`
	Recall  float64 `json:"recall"`
}

// SystemReport aggregates metrics for one evaluated system. Queries is the
// number of judged queries present in the run; partial runs are scored
// over that subset only.
type SystemReport struct {
	System  string  `json:"system"`
	Status  string  `json:"status"` // "ok", or why the system was not scored
	Queries int     `json:"queries"`
	MAP     float64 `json:"map"`
	NDCG    float64 `json:"ndcg"`
	Recall  float64 `json:"recall"`
}

// StatusOK marks a successfully scored system.
const StatusOK = "ok"
