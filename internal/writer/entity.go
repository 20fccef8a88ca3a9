package writer

import "strings"

// entityMatcher classifies a Post against a configured set of entities by
// substring match on content, extra_content, and source_name. A Post
// matching no entity falls under "Others".
type entityMatcher struct {
	// aliasToEntity maps every lowercased alias to its canonical entity
	// display name.
	aliasToEntity map[string]string
}

func newEntityMatcher(entities map[string][]string) *entityMatcher {
	m := &entityMatcher{aliasToEntity: map[string]string{}}
	for display, aliases := range entities {
		for _, alias := range aliases {
			m.aliasToEntity[strings.ToLower(alias)] = display
		}
		m.aliasToEntity[strings.ToLower(display)] = display
	}
	return m
}

// Match returns every entity whose alias appears as a substring of any of
// the given haystacks, deduplicated.
func (m *entityMatcher) Match(haystacks ...string) []string {
	combined := strings.ToLower(strings.Join(haystacks, "\n"))

	seen := map[string]struct{}{}
	var matches []string
	for alias, entity := range m.aliasToEntity {
		if !strings.Contains(combined, alias) {
			continue
		}
		if _, ok := seen[entity]; ok {
			continue
		}
		seen[entity] = struct{}{}
		matches = append(matches, entity)
	}
	if len(matches) == 0 {
		return []string{"Others"}
	}
	return matches
}
