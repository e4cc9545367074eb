// Package knowledge loads the read-only page map produced by the plan
// analysis pipeline and answers lookups against it.
//
// Layout on disk:
//
//	knowledge_store/{project}/project.json
//	knowledge_store/{project}/index.json
//	knowledge_store/{project}/pages/{name}/pass1.json
//	knowledge_store/{project}/pages/{name}/page.png
//	knowledge_store/{project}/pages/{name}/pointers/{region}/pass2.json
//	knowledge_store/{project}/pages/{name}/pointers/{region}/crop.png
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"maestro/pkg/logx"
)

// IndexEntry is the searchable index record for one page.
// Modifications are the install/demolish/protect items the analysis
// pipeline extracted from the sheet.
type IndexEntry struct {
	Materials     []string `json:"materials"`
	Keywords      []string `json:"keywords"`
	Modifications []string `json:"modifications,omitempty"`
}

// Region is a rectangular region of interest identified on a page.
type Region struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	BBox  []float64 `json:"bbox"` // x, y, width, height as page fractions
}

// Pointer is the deep-read content for one region (pass 2).
type Pointer struct {
	RegionID string `json:"region_id"`
	Content  string `json:"content_markdown"`
	CropPath string `json:"-"` // crop.png next to pass2.json, if present
}

// Page is one sheet of the plan set.
type Page struct {
	Name            string   `json:"name"`
	SheetReflection string   `json:"sheet_reflection"`
	PageType        string   `json:"page_type"`
	Discipline      string   `json:"discipline"`
	Regions         []Region `json:"regions"`
	CrossReferences []string `json:"cross_references"`

	Pointers  []*Pointer `json:"-"`
	ImagePath string     `json:"-"` // page.png, empty when absent
	Dir       string     `json:"-"`
}

// Knowledge is the loaded project page map. It is immutable after Load
// except through ApplyPatch, which the learning tools use.
type Knowledge struct {
	Name        string
	SourcePath  string
	TotalPages  int
	Disciplines []string
	Index       map[string]IndexEntry
	Pages       map[string]*Page

	pageNames []string // sorted
	root      string
}

type projectFile struct {
	Name        string   `json:"name"`
	SourcePath  string   `json:"source_path"`
	TotalPages  int      `json:"total_pages"`
	Disciplines []string `json:"disciplines"`
}

// Load reads a project's knowledge store from disk.
func Load(root, project string) (*Knowledge, error) {
	logger := logx.NewLogger("knowledge")
	base := filepath.Join(root, project)

	var pf projectFile
	if err := readJSON(filepath.Join(base, "project.json"), &pf); err != nil {
		return nil, fmt.Errorf("failed to load project.json: %w", err)
	}
	if pf.Name == "" {
		pf.Name = project
	}

	k := &Knowledge{
		Name:        pf.Name,
		SourcePath:  pf.SourcePath,
		TotalPages:  pf.TotalPages,
		Disciplines: pf.Disciplines,
		Index:       map[string]IndexEntry{},
		Pages:       map[string]*Page{},
		root:        base,
	}

	// index.json is optional; search degrades to reflections and pointers.
	if err := readJSON(filepath.Join(base, "index.json"), &k.Index); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load index.json: %v", err)
	}

	pagesDir := filepath.Join(base, "pages")
	entries, err := os.ReadDir(pagesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read pages directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		page, err := loadPage(filepath.Join(pagesDir, entry.Name()), entry.Name())
		if err != nil {
			logger.Warn("Skipping page %s: %v", entry.Name(), err)
			continue
		}
		k.Pages[page.Name] = page
		k.pageNames = append(k.pageNames, page.Name)
	}
	sort.Strings(k.pageNames)

	if k.TotalPages == 0 {
		k.TotalPages = len(k.Pages)
	}
	if len(k.Disciplines) == 0 {
		k.Disciplines = deriveDisciplines(k.Pages)
	}

	logger.Info("Loaded project %s: %d pages, %d disciplines", k.Name, len(k.Pages), len(k.Disciplines))
	return k, nil
}

func loadPage(dir, name string) (*Page, error) {
	page := &Page{
		Name:       name,
		PageType:   "unknown",
		Discipline: "General",
		Dir:        dir,
	}
	if err := readJSON(filepath.Join(dir, "pass1.json"), page); err != nil {
		return nil, err
	}
	if page.Name == "" {
		page.Name = name
	}
	if page.PageType == "" {
		page.PageType = "unknown"
	}
	if page.Discipline == "" {
		page.Discipline = "General"
	}

	if img := filepath.Join(dir, "page.png"); fileExists(img) {
		page.ImagePath = img
	}

	pointersDir := filepath.Join(dir, "pointers")
	entries, err := os.ReadDir(pointersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return page, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ptr := &Pointer{RegionID: entry.Name()}
		pass2 := filepath.Join(pointersDir, entry.Name(), "pass2.json")
		if err := readJSON(pass2, ptr); err != nil {
			continue
		}
		if ptr.RegionID == "" {
			ptr.RegionID = entry.Name()
		}
		if crop := filepath.Join(pointersDir, entry.Name(), "crop.png"); fileExists(crop) {
			ptr.CropPath = crop
		}
		page.Pointers = append(page.Pointers, ptr)
	}
	sort.Slice(page.Pointers, func(i, j int) bool {
		return page.Pointers[i].RegionID < page.Pointers[j].RegionID
	})
	return page, nil
}

func deriveDisciplines(pages map[string]*Page) []string {
	seen := map[string]bool{}
	for _, p := range pages {
		seen[p.Discipline] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// PageNames returns all page names, sorted.
func (k *Knowledge) PageNames() []string {
	return k.pageNames
}

// Page returns a page by exact name.
func (k *Knowledge) Page(name string) (*Page, bool) {
	p, ok := k.Pages[name]
	return p, ok
}

// Pointer returns one pointer on a page by region id.
func (p *Page) Pointer(regionID string) (*Pointer, bool) {
	for _, ptr := range p.Pointers {
		if ptr.RegionID == regionID {
			return ptr, true
		}
	}
	return nil, false
}

// Region returns a region on a page by id.
func (p *Page) Region(id string) (*Region, bool) {
	for i := range p.Regions {
		if p.Regions[i].ID == id {
			return &p.Regions[i], true
		}
	}
	return nil, false
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
