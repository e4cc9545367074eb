package knowledge

import (
	"fmt"
	"strings"
)

// SearchResult is one search hit with surrounding context.
type SearchResult struct {
	PageName     string `json:"page_name"`
	Source       string `json:"source"` // index, reflection, pointer
	MatchContext string `json:"match_context"`
}

// Search scans the index (materials and keywords), sheet reflections,
// and pointer content for a case-insensitive query.
func (k *Knowledge) Search(query string) []SearchResult {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var results []SearchResult
	for _, name := range k.pageNames {
		if entry, ok := k.Index[name]; ok {
			for _, term := range append(append([]string{}, entry.Materials...), entry.Keywords...) {
				if strings.Contains(strings.ToLower(term), q) {
					results = append(results, SearchResult{
						PageName:     name,
						Source:       "index",
						MatchContext: term,
					})
					break
				}
			}
		}

		page := k.Pages[name]
		if idx := strings.Index(strings.ToLower(page.SheetReflection), q); idx >= 0 {
			results = append(results, SearchResult{
				PageName:     name,
				Source:       "reflection",
				MatchContext: contextAround(page.SheetReflection, idx, len(q)),
			})
		}

		for _, ptr := range page.Pointers {
			if idx := strings.Index(strings.ToLower(ptr.Content), q); idx >= 0 {
				results = append(results, SearchResult{
					PageName:     name,
					Source:       "pointer",
					MatchContext: fmt.Sprintf("[%s] %s", ptr.RegionID, contextAround(ptr.Content, idx, len(q))),
				})
				break
			}
		}
	}
	return results
}

// contextAround returns a window of text around a match position.
func contextAround(text string, idx, matchLen int) string {
	const window = 80
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + window
	if end > len(text) {
		end = len(text)
	}
	return strings.TrimSpace(text[start:end])
}

// Gap is a hole in the knowledge store worth investigating.
type Gap struct {
	Type     string `json:"type"` // broken_ref, missing_pass2
	PageName string `json:"page_name"`
	Detail   string `json:"detail"`
}

// CheckGaps reports cross-references to unknown pages and regions that
// never received a deep read.
func (k *Knowledge) CheckGaps() []Gap {
	var gaps []Gap
	for _, name := range k.pageNames {
		page := k.Pages[name]

		for _, ref := range page.CrossReferences {
			if _, err := k.ResolvePage(ref); err != nil {
				gaps = append(gaps, Gap{
					Type:     "broken_ref",
					PageName: name,
					Detail:   fmt.Sprintf("references unknown page '%s'", ref),
				})
			}
		}

		missing := page.RegionsWithoutPointer()
		if len(page.Regions) > 0 && missing > 0 {
			gaps = append(gaps, Gap{
				Type:     "missing_pass2",
				PageName: name,
				Detail:   fmt.Sprintf("%d of %d regions have no deep read", missing, len(page.Regions)),
			})
		}
	}
	return gaps
}

// RegionsWithoutPointer counts regions lacking a pass-2 pointer.
func (p *Page) RegionsWithoutPointer() int {
	have := map[string]bool{}
	for _, ptr := range p.Pointers {
		have[ptr.RegionID] = true
	}
	missing := 0
	for _, region := range p.Regions {
		if !have[region.ID] {
			missing++
		}
	}
	return missing
}
