// Package optimize prepares a captured receipt image for upload: PDF
// captures are rastered to their first page and images are re-encoded as
// JPEG at a configured quality to shrink the upload.
package optimize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Result describes one optimization run
type Result struct {
	Path          string  // path of the optimized JPEG
	OriginalSize  int64   // bytes before optimization
	OptimizedSize int64   // bytes after optimization
	Ratio         float64 // optimized / original
}

// ProgressFunc reports optimization progress as 0-100
type ProgressFunc func(progress int)

// Optimizer re-encodes capture sources into upload-ready JPEGs
type Optimizer struct {
	quality int
	logger  *zap.Logger
}

// NewOptimizer creates an optimizer with the given JPEG quality (1-100)
func NewOptimizer(quality int, logger *zap.Logger) *Optimizer {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Optimizer{quality: quality, logger: logger}
}

// Optimize reads the capture source, decodes or rasters it, and writes an
// optimized JPEG next to the source file
func (o *Optimizer) Optimize(sourcePath string, onProgress ProgressFunc) (*Result, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("cannot stat source: %w", err)
	}
	report(onProgress, 10)

	img, err := o.decode(sourcePath)
	if err != nil {
		return nil, err
	}
	report(onProgress, 50)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	report(onProgress, 80)

	outPath := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + "_optimized.jpg"
	if err := os.WriteFile(outPath, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write optimized image: %w", err)
	}
	report(onProgress, 100)

	result := &Result{
		Path:          outPath,
		OriginalSize:  info.Size(),
		OptimizedSize: int64(buf.Len()),
		Ratio:         float64(buf.Len()) / float64(info.Size()),
	}

	o.logger.Info("Image optimized",
		zap.String("source", sourcePath),
		zap.Int64("original_size", result.OriginalSize),
		zap.Int64("optimized_size", result.OptimizedSize),
		zap.Float64("ratio", result.Ratio))

	return result, nil
}

func report(fn ProgressFunc, progress int) {
	if fn != nil {
		fn(progress)
	}
}

// decode loads the source as an image; PDFs are rastered via mupdf
func (o *Optimizer) decode(sourcePath string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	switch ext {
	case ".pdf":
		return o.rasterPDF(sourcePath)
	case ".jpg", ".jpeg":
		return decodeWith(sourcePath, jpeg.Decode)
	case ".png":
		return decodeWith(sourcePath, png.Decode)
	}
	return nil, fmt.Errorf("unsupported capture format: %s", ext)
}

// rasterPDF renders the first page of a PDF document as an image
func (o *Optimizer) rasterPDF(pdfPath string) (image.Image, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("PDF has no pages: %s", pdfPath)
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("failed to raster PDF page: %w", err)
	}
	return img, nil
}

func decodeWith(path string, decode func(r io.Reader) (image.Image, error)) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, err := decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
