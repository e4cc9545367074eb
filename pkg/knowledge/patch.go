package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Patch operations rewrite the backing JSON files and the in-memory
// structures together. Callers are serialized through the conversation
// loop; the knowledge store itself takes no locks.

// UpdateSheetReflection replaces a page's sheet reflection in pass1.json.
func (k *Knowledge) UpdateSheetReflection(pageName, text string) error {
	page, err := k.ResolvePage(pageName)
	if err != nil {
		return err
	}
	if err := patchJSONFile(filepath.Join(page.Dir, "pass1.json"), func(doc map[string]any) {
		doc["sheet_reflection"] = text
	}); err != nil {
		return err
	}
	page.SheetReflection = text
	return nil
}

// ExtendCrossReferences appends new cross-references to pass1.json,
// skipping duplicates.
func (k *Knowledge) ExtendCrossReferences(pageName string, refs []string) (int, error) {
	page, err := k.ResolvePage(pageName)
	if err != nil {
		return 0, err
	}

	existing := map[string]bool{}
	for _, ref := range page.CrossReferences {
		existing[ref] = true
	}
	var added []string
	for _, ref := range refs {
		if ref != "" && !existing[ref] {
			existing[ref] = true
			added = append(added, ref)
		}
	}
	if len(added) == 0 {
		return 0, nil
	}

	merged := append(append([]string{}, page.CrossReferences...), added...)
	if err := patchJSONFile(filepath.Join(page.Dir, "pass1.json"), func(doc map[string]any) {
		doc["cross_references"] = merged
	}); err != nil {
		return 0, err
	}
	page.CrossReferences = merged
	return len(added), nil
}

// MergeIndexEntry merges materials and keywords into the page's index
// record and rewrites index.json.
func (k *Knowledge) MergeIndexEntry(pageName string, materials, keywords []string) error {
	page, err := k.ResolvePage(pageName)
	if err != nil {
		return err
	}

	entry := k.Index[page.Name]
	entry.Materials = mergeTerms(entry.Materials, materials)
	entry.Keywords = mergeTerms(entry.Keywords, keywords)
	k.Index[page.Name] = entry

	data, err := json.MarshalIndent(k.Index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(k.root, "index.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write index.json: %w", err)
	}
	return nil
}

// UpdatePointerContent replaces the deep-read markdown for one region
// in pass2.json. The pointer must already exist.
func (k *Knowledge) UpdatePointerContent(pageName, regionID, markdown string) error {
	page, err := k.ResolvePage(pageName)
	if err != nil {
		return err
	}
	ptr, ok := page.Pointer(regionID)
	if !ok {
		return fmt.Errorf("region '%s' has no pointer on page '%s'", regionID, page.Name)
	}

	pass2 := filepath.Join(page.Dir, "pointers", regionID, "pass2.json")
	if err := patchJSONFile(pass2, func(doc map[string]any) {
		doc["content_markdown"] = markdown
	}); err != nil {
		return err
	}
	ptr.Content = markdown
	return nil
}

func mergeTerms(existing, extra []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(existing)+len(extra))
	for _, t := range append(append([]string{}, existing...), extra...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func patchJSONFile(path string, mutate func(map[string]any)) error {
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Patching a fresh file is allowed; it starts empty.
	default:
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	mutate(doc)

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
