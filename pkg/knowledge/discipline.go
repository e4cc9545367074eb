package knowledge

import "strings"

// Canonical discipline order for UI display. MEP is a synthesized
// parent bucket over Mechanical, Electrical, and Plumbing.
var canonicalOrder = []string{
	"General",
	"Architectural",
	"Structural",
	"Civil",
	"MEP",
	"Mechanical",
	"Electrical",
	"Plumbing",
	"Kitchen",
	"Landscape",
	"Vapor Mitigation",
	"Canopy",
}

// MEPSubdisciplines are the children of the synthesized MEP bucket.
var MEPSubdisciplines = []string{"Mechanical", "Electrical", "Plumbing"}

// disciplineMap folds the long tail of source disciplines into the
// canonical set.
var disciplineMap = map[string]string{
	"general":                "General",
	"architectural":          "Architectural",
	"architecture":           "Architectural",
	"structural":             "Structural",
	"civil":                  "Civil",
	"traffic":                "Civil",
	"traffic control":        "Civil",
	"surveying":              "Civil",
	"mechanical":             "Mechanical",
	"hvac":                   "Mechanical",
	"electrical":             "Electrical",
	"lighting":               "Electrical",
	"plumbing":               "Plumbing",
	"plumbing (mep)":         "Plumbing",
	"kitchen":                "Kitchen",
	"foodservice":            "Kitchen",
	"foodservice equipment":  "Kitchen",
	"landscape":              "Landscape",
	"landscaping":            "Landscape",
	"irrigation":             "Landscape",
	"vapor mitigation":       "Vapor Mitigation",
	"environmental":          "Vapor Mitigation",
	"demolition":             "Vapor Mitigation",
	"canopy":                 "Canopy",
	"signage & canopy":       "Canopy",
	"specialties (canopy)":   "Canopy",
	"mep":                    "MEP",
	"mep coordination":       "MEP",
}

// NormalizeDiscipline maps a raw discipline label onto the canonical
// set: direct lookup, then the first token of a compound "a/b" label,
// then substring containment, then General.
func NormalizeDiscipline(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "General"
	}
	if canonical, ok := disciplineMap[key]; ok {
		return canonical
	}

	if strings.Contains(key, "/") {
		first := strings.TrimSpace(strings.SplitN(key, "/", 2)[0])
		if canonical, ok := disciplineMap[first]; ok {
			return canonical
		}
	}

	for source, canonical := range disciplineMap {
		if strings.Contains(key, source) {
			return canonical
		}
	}
	return "General"
}

// DisciplineGroup is one entry in the grouped discipline listing.
type DisciplineGroup struct {
	Name      string   `json:"name"`
	PageCount int      `json:"page_count"`
	Children  []string `json:"children,omitempty"`
}

// DisciplineGroups returns the canonical disciplines present in this
// project, in display order, with page counts. When any MEP
// subdiscipline is present, an MEP parent entry is synthesized ahead of
// its children carrying the combined count.
func (k *Knowledge) DisciplineGroups() []DisciplineGroup {
	counts := map[string]int{}
	for _, page := range k.Pages {
		counts[NormalizeDiscipline(page.Discipline)]++
	}

	mepTotal := 0
	var mepChildren []string
	for _, sub := range MEPSubdisciplines {
		if counts[sub] > 0 {
			mepTotal += counts[sub]
			mepChildren = append(mepChildren, sub)
		}
	}

	var groups []DisciplineGroup
	for _, name := range canonicalOrder {
		if name == "MEP" {
			if mepTotal > 0 {
				groups = append(groups, DisciplineGroup{
					Name:      "MEP",
					PageCount: mepTotal + counts["MEP"],
					Children:  mepChildren,
				})
			}
			continue
		}
		if counts[name] > 0 {
			groups = append(groups, DisciplineGroup{Name: name, PageCount: counts[name]})
		}
	}
	return groups
}

// PagesForDiscipline returns page names whose normalized discipline
// matches. Filtering by MEP matches all three subdisciplines.
func (k *Knowledge) PagesForDiscipline(discipline string) []string {
	want := NormalizeDiscipline(discipline)

	match := func(d string) bool {
		if want == "MEP" {
			if d == "MEP" {
				return true
			}
			for _, sub := range MEPSubdisciplines {
				if d == sub {
					return true
				}
			}
			return false
		}
		return d == want
	}

	var out []string
	for _, name := range k.pageNames {
		if match(NormalizeDiscipline(k.Pages[name].Discipline)) {
			out = append(out, name)
		}
	}
	return out
}
