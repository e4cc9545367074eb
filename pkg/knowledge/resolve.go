package knowledge

import (
	"fmt"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeName lowercases and folds runs of non-alphanumerics into
// single underscores so "K-2.11", "k 2 11", and "K_2_11" compare equal.
func normalizeName(name string) string {
	return strings.Trim(tokenPattern.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// ResolvePage resolves a user- or model-supplied page name against the
// page map: exact match, then normalized match, then unique prefix,
// then unique substring. Page names and the query are both normalized,
// so case and separator choice never matter. A prefix or substring that
// matches several pages is an error naming the candidates rather than a
// silent guess.
func (k *Knowledge) ResolvePage(input string) (*Page, error) {
	if p, ok := k.Pages[input]; ok {
		return p, nil
	}

	normalized := normalizeName(input)
	for _, name := range k.pageNames {
		if normalizeName(name) == normalized {
			return k.Pages[name], nil
		}
	}

	var prefix []string
	for _, name := range k.pageNames {
		n := normalizeName(name)
		if strings.HasPrefix(n, normalized) || strings.HasPrefix(n, normalized+"_") {
			prefix = append(prefix, name)
		}
	}
	if len(prefix) == 1 {
		return k.Pages[prefix[0]], nil
	}
	if len(prefix) > 1 {
		return nil, ambiguousErr(input, prefix)
	}

	var substring []string
	for _, name := range k.pageNames {
		if strings.Contains(normalizeName(name), normalized) {
			substring = append(substring, name)
		}
	}
	if len(substring) == 1 {
		return k.Pages[substring[0]], nil
	}
	if len(substring) > 1 {
		return nil, ambiguousErr(input, substring)
	}

	return nil, fmt.Errorf("Page '%s' not found. Use list_pages() to see available pages.", input)
}

func ambiguousErr(input string, candidates []string) error {
	return fmt.Errorf("Page '%s' is ambiguous. Matches: %s", input, strings.Join(candidates, ", "))
}
