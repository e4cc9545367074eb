package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // page images are PNG scans
	"os"
	"sync"

	xdraw "golang.org/x/image/draw"
	"google.golang.org/genai"

	"maestro/pkg/knowledge"
	"maestro/pkg/logx"
	"maestro/pkg/store"
)

const (
	// DefaultModel handles highlight analysis. Flash is fast and cheap
	// enough to run several agents per tool call.
	DefaultModel = "gemini-3-flash-preview"

	// maxUploadDim caps the longest image edge before upload. Plan
	// sheets scan at 300dpi and easily exceed 10k pixels.
	maxUploadDim = 3000

	uploadJPEGQuality = 85
)

const analysisPrompt = "You are analyzing a construction plan page.\n\n" +
	"PAGE: %s\n" +
	"MISSION: %s\n\n" +
	"Use code execution to inspect the image and identify rectangular regions relevant " +
	"to the mission. Think with code naturally."

// Worker spawns highlight agents. It implements the spawner interface
// the highlight_on_page tool expects.
type Worker struct {
	store     *store.Store
	knowledge *knowledge.Knowledge
	apiKey    string
	model     string
	logger    *logx.Logger

	mu     sync.Mutex
	client *genai.Client

	wg sync.WaitGroup
}

// NewWorker wires a vision worker. The Gemini client is created lazily
// on first use so construction never needs network access.
func NewWorker(st *store.Store, k *knowledge.Knowledge, apiKey string) *Worker {
	return &Worker{
		store:     st,
		knowledge: k,
		apiKey:    apiKey,
		model:     DefaultModel,
		logger:    logx.NewLogger("vision"),
	}
}

// Wait blocks until all in-flight agents finish. Used on shutdown.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// SpawnHighlights queues one highlight job per page and returns
// immediately; agents run in the background and resolve their jobs as
// they complete.
func (w *Worker) SpawnHighlights(ctx context.Context, workspace string, pages []string, mission string) (map[string]any, error) {
	ws, err := w.store.ResolveWorkspace(workspace)
	if err != nil {
		return nil, err
	}

	spawned := []map[string]any{}
	skipped := []map[string]string{}

	for _, raw := range pages {
		page, err := w.knowledge.ResolvePage(raw)
		if err != nil {
			skipped = append(skipped, map[string]string{"page_name": raw, "reason": err.Error()})
			continue
		}
		if page.ImagePath == "" {
			skipped = append(skipped, map[string]string{
				"page_name": page.Name, "reason": fmt.Sprintf("No image for '%s'.", page.Name),
			})
			continue
		}

		h, err := w.store.CreateHighlight(ws.Slug, page.Name, mission)
		if err != nil {
			skipped = append(skipped, map[string]string{"page_name": page.Name, "reason": err.Error()})
			continue
		}

		w.wg.Add(1)
		go func(h *store.Highlight, page *knowledge.Page) {
			defer w.wg.Done()
			w.runAgent(context.WithoutCancel(ctx), h, page)
		}(h, page)

		spawned = append(spawned, map[string]any{
			"highlight_id":   h.ID,
			"workspace_slug": ws.Slug,
			"page_name":      page.Name,
			"mission":        mission,
			"status":         store.HighlightPending,
		})
	}

	if len(spawned) == 0 {
		detail := "No highlights were spawned."
		if len(skipped) > 0 {
			detail = skipped[0]["reason"]
		}
		return nil, fmt.Errorf("No highlights spawned. %s", detail)
	}

	return map[string]any{
		"workspace_slug": ws.Slug,
		"spawned":        spawned,
		"skipped":        skipped,
		"message": fmt.Sprintf("Spawned %d highlight agents. "+
			"Results will appear in the workspace as they complete.", len(spawned)),
	}, nil
}

// runAgent drives one highlight job to complete or failed.
func (w *Worker) runAgent(ctx context.Context, h *store.Highlight, page *knowledge.Page) {
	boxes, err := w.analyze(ctx, page, h.Mission)
	if err != nil {
		w.logger.Error("Highlight agent failed for %s (%s): %v", page.Name, h.ID, err)
		if rerr := w.store.ResolveHighlight(h.ID, store.HighlightFailed, nil, err.Error()); rerr != nil {
			w.logger.Error("Failed to mark highlight %s failed: %v", h.ID, rerr)
		}
		return
	}

	w.logger.Info("Highlight %s complete: %d region(s) on %s", h.ID, len(boxes), page.Name)
	if err := w.store.ResolveHighlight(h.ID, store.HighlightComplete, boxes, ""); err != nil {
		w.logger.Error("Failed to complete highlight %s: %v", h.ID, err)
	}
}

// analyze sends the page image to Gemini with code execution enabled
// and scrapes rectangles from the full reasoning trace.
func (w *Worker) analyze(ctx context.Context, page *knowledge.Page, mission string) ([]store.BBox, error) {
	imgData, width, height, err := PrepareImage(page.ImagePath)
	if err != nil {
		return nil, err
	}

	client, err := w.getClient(ctx)
	if err != nil {
		return nil, err
	}

	temperature := float32(0)
	result, err := client.Models.GenerateContent(ctx, w.model,
		[]*genai.Content{{
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: imgData}},
				{Text: fmt.Sprintf(analysisPrompt, page.Name, mission)},
			},
		}},
		&genai.GenerateContentConfig{
			Temperature: &temperature,
			Tools:       []*genai.Tool{{CodeExecution: &genai.ToolCodeExecution{}}},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini analysis failed: %w", err)
	}

	trace := collectTrace(result)
	boxes := extractBBoxes(trace, width, height)
	if len(boxes) == 0 {
		return nil, fmt.Errorf("no valid bbox coordinates found in analysis trace")
	}
	return boxes, nil
}

// collectTrace flattens text, executed code, and code output into
// scannable chunks. Rectangles show up in all three.
func collectTrace(result *genai.GenerateContentResponse) []string {
	var trace []string
	for _, cand := range result.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				trace = append(trace, part.Text)
			}
			if part.ExecutableCode != nil {
				trace = append(trace, part.ExecutableCode.Code)
			}
			if part.CodeExecutionResult != nil {
				trace = append(trace, part.CodeExecutionResult.Output)
			}
		}
	}
	return trace
}

// PrepareImage loads a page image, downscales it to the upload cap, and
// re-encodes as JPEG. Returns the uploaded dimensions, which are what
// the model's pixel coordinates refer to. The see_page tool shares this
// path so the model never receives an oversized upload.
func PrepareImage(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open page image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode page image: %w", err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width > maxUploadDim || height > maxUploadDim {
		scale := float64(maxUploadDim) / float64(width)
		if height > width {
			scale = float64(maxUploadDim) / float64(height)
		}
		width = int(float64(width) * scale)
		height = int(float64(height) * scale)

		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: uploadJPEGQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode upload image: %w", err)
	}
	return buf.Bytes(), width, height, nil
}

func (w *Worker) getClient(ctx context.Context) (*genai.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		return w.client, nil
	}
	if w.apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  w.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	w.client = client
	return w.client, nil
}
