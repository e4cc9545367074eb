// Package vision runs background highlight agents. Each agent sends a
// plan page image to Gemini with code execution enabled, scrapes pixel
// rectangles out of the reasoning trace, and stores them as normalized
// bounding boxes on the highlight job.
package vision

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"maestro/pkg/store"
)

// Gemini reports crop rectangles in several shapes depending on how the
// model "thinks": bare (x1, y1, x2, y2) tuples in code, bracket lists,
// and the box_2d convention from its object-detection training.
var (
	coordParenPattern = regexp.MustCompile(
		`\(\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*\)`)
	coordBracketPattern = regexp.MustCompile(
		`\[\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*\]`)
	box2dPattern = regexp.MustCompile(
		`(?i)box_2d\s*[:=]\s*\[\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*\]`)
)

type pixelBox struct {
	x1, y1, x2, y2 float64
}

// extractPixelBoxes pulls candidate rectangles out of one trace chunk.
// Bare tuples and bracket lists only count when the surrounding text is
// actually talking about rectangles; box_2d is unambiguous.
func extractPixelBoxes(text string) []pixelBox {
	if text == "" {
		return nil
	}

	var boxes []pixelBox
	for _, m := range box2dPattern.FindAllStringSubmatch(text, -1) {
		if b, ok := parseBox(m); ok {
			boxes = append(boxes, b)
		}
	}

	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "rectangle") || strings.Contains(lowered, "crop") ||
		strings.Contains(lowered, "bbox") || strings.Contains(lowered, "box") {
		for _, m := range coordParenPattern.FindAllStringSubmatch(text, -1) {
			if b, ok := parseBox(m); ok {
				boxes = append(boxes, b)
			}
		}
		for _, m := range coordBracketPattern.FindAllStringSubmatch(text, -1) {
			if b, ok := parseBox(m); ok {
				boxes = append(boxes, b)
			}
		}
	}
	return boxes
}

func parseBox(match []string) (pixelBox, bool) {
	vals := make([]float64, 4)
	for i := 0; i < 4; i++ {
		f, err := strconv.ParseFloat(match[i+1], 64)
		if err != nil {
			return pixelBox{}, false
		}
		vals[i] = f
	}
	return pixelBox{vals[0], vals[1], vals[2], vals[3]}, true
}

// normalizeBox converts a pixel rectangle to a unit-square bbox. Corner
// order is not trusted; degenerate boxes return false.
func normalizeBox(b pixelBox, width, height int) (store.BBox, bool) {
	if width <= 0 || height <= 0 {
		return store.BBox{}, false
	}

	left := math.Min(b.x1, b.x2)
	right := math.Max(b.x1, b.x2)
	top := math.Min(b.y1, b.y2)
	bottom := math.Max(b.y1, b.y2)
	if right <= left || bottom <= top {
		return store.BBox{}, false
	}

	nx := clamp01(left / float64(width))
	ny := clamp01(top / float64(height))
	nright := clamp01(right / float64(width))
	nbottom := clamp01(bottom / float64(height))

	w := nright - nx
	h := nbottom - ny
	if w <= 0 || h <= 0 {
		return store.BBox{}, false
	}

	return store.BBox{
		X:      round6(nx),
		Y:      round6(ny),
		Width:  round6(w),
		Height: round6(h),
	}, true
}

// extractBBoxes scans a whole trace and returns deduplicated normalized
// boxes. Duplicates are detected at 4-decimal precision since the model
// often restates the same rectangle in code and prose.
func extractBBoxes(trace []string, width, height int) []store.BBox {
	type key struct{ x, y, w, h float64 }
	seen := map[key]bool{}
	var out []store.BBox

	for _, chunk := range trace {
		for _, raw := range extractPixelBoxes(chunk) {
			bbox, ok := normalizeBox(raw, width, height)
			if !ok {
				continue
			}
			k := key{round4(bbox.X), round4(bbox.Y), round4(bbox.Width), round4(bbox.Height)}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, bbox)
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
func round4(v float64) float64 { return math.Round(v*1e4) / 1e4 }
