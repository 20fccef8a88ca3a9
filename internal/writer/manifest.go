package writer

// Manifest is the per-run summary written to batch_manifest.json once every
// post has been persisted.
type Manifest struct {
	BatchID            string         `json:"batch_id"`
	StartedAt          string         `json:"started_at"`
	EndedAt            string         `json:"ended_at"`
	Cancelled          bool           `json:"cancelled"`
	CountsBySourceType map[string]int `json:"counts_by_source_type"`
	CountsByBucket     map[string]int `json:"counts_by_bucket"`
	CountsByDomain     map[string]int `json:"counts_by_domain"`
	CountsByEntity     map[string]int `json:"counts_by_entity"`
}

// LatestBatchPointer is written to data/latest_batch.json after each run.
type LatestBatchPointer struct {
	BatchID string `json:"batch_id"`
	Path    string `json:"path"`
}
