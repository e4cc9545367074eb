package webui

import (
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // page images are PNG scans
	"net/http"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"
)

// handlePageThumb serves a resized JPEG of a plan page. Thumbnails are
// generated once and cached next to the page image as thumb_{w}_{q}.jpg.
func (s *Server) handlePageThumb(w http.ResponseWriter, r *http.Request) {
	if s.knowledge == nil {
		httpError(w, http.StatusServiceUnavailable, "No project loaded")
		return
	}
	name := r.PathValue("name")
	page, ok := s.knowledge.Page(name)
	if !ok {
		httpError(w, http.StatusNotFound, "Page '%s' not found", name)
		return
	}
	if page.ImagePath == "" {
		httpError(w, http.StatusNotFound, "Page image not found")
		return
	}

	width := intParam(r, "w", 800, 100, 2000)
	quality := intParam(r, "q", 80, 10, 100)

	cachePath := filepath.Join(page.Dir, fmt.Sprintf("thumb_%d_%d.jpg", width, quality))
	if _, err := os.Stat(cachePath); err != nil {
		if err := renderThumb(page.ImagePath, cachePath, width, quality); err != nil {
			s.logger.Error("Thumbnail generation failed for %s: %v", name, err)
			httpError(w, http.StatusInternalServerError, "Failed to generate thumbnail")
			return
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, cachePath)
}

// renderThumb resizes the page image to the requested width, keeping
// aspect ratio, and writes it through a temp file.
func renderThumb(srcPath, dstPath string, width, quality int) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open page image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode page image: %w", err)
	}

	bounds := src.Bounds()
	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)

	tmp := dstPath + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create thumbnail: %w", err)
	}
	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: quality}); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dstPath)
}
