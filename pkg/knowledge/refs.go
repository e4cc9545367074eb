package knowledge

// Modification is one install/demolish/protect item from the index,
// tagged with the page it was extracted from.
type Modification struct {
	PageName string `json:"page_name"`
	Text     string `json:"text"`
}

// Modifications returns every modification item across the project, in
// page order.
func (k *Knowledge) Modifications() []Modification {
	out := []Modification{}
	for _, name := range k.pageNames {
		for _, text := range k.Index[name].Modifications {
			out = append(out, Modification{PageName: name, Text: text})
		}
	}
	return out
}

// ReferencesTo returns the pages whose cross-references resolve to
// name. References that fail to resolve are skipped; CheckGaps reports
// those separately.
func (k *Knowledge) ReferencesTo(name string) []string {
	out := []string{}
	for _, other := range k.pageNames {
		if other == name {
			continue
		}
		for _, ref := range k.Pages[other].CrossReferences {
			p, err := k.ResolvePage(ref)
			if err == nil && p.Name == name {
				out = append(out, other)
				break
			}
		}
	}
	return out
}
