package organizer

import "encoding/json"

// classification is the raw shape an LLM completion decodes into before
// validation clamps it to the pipeline's constraints.
type classification struct {
	Event         string   `json:"event"`
	Category      string   `json:"category"`
	Domain        string   `json:"domain"`
	QualityScore  int      `json:"quality_score"`
	QualityReason string   `json:"quality_reason"`
	KeyInfo       []string `json:"key_info"`
	Detail        string   `json:"detail"`
}

func parseClassification(raw string) (*classification, error) {
	var c classification
	if err := json.Unmarshal([]byte(cleanCompletion(raw)), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate clamps quality_score to [0,5], defaults domain to "Others" when
// it isn't in allowedDomains, and caps key_info at 10 items.
func (c *classification) validate(allowedDomains []string) {
	if c.QualityScore < 0 {
		c.QualityScore = 0
	}
	if c.QualityScore > 5 {
		c.QualityScore = 5
	}

	if !contains(allowedDomains, c.Domain) {
		c.Domain = "Others"
	}

	if len(c.KeyInfo) > 10 {
		c.KeyInfo = c.KeyInfo[:10]
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
