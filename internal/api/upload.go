package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/an-heidi/image-resizer/internal/resize"
)

// UploadField is the multipart form field carrying image files.
const UploadField = "media"

// multipartMemoryLimit is only the in-memory spool threshold; larger
// parts overflow to temp files, so there is no effective body-size cap.
const multipartMemoryLimit = 32 << 20

// UploadResponse is the JSON body returned for a successful upload batch.
type UploadResponse struct {
	Message string        `json:"message"`
	Timings UploadTimings `json:"timings"`
	Sizes   UploadSizes   `json:"sizes"`
}

type UploadTimings struct {
	// TotalProcessingTime is the wall time in milliseconds spent
	// transforming the whole batch.
	TotalProcessingTime float64      `json:"totalProcessingTime"`
	Files               []FileTiming `json:"files"`
}

type FileTiming struct {
	Name       string  `json:"name"`
	DurationMs float64 `json:"durationMs"`
}

type UploadSizes struct {
	TotalOriginalSize  int64       `json:"totalOriginalSize"`
	TotalProcessedSize TierSizes   `json:"totalProcessedSize"`
	Files              []FileSizes `json:"files"`
}

type TierSizes struct {
	Low      int64 `json:"low"`
	Medium   int64 `json:"medium"`
	Original int64 `json:"original"`
}

type FileSizes struct {
	Name         string `json:"name"`
	OriginalSize int64  `json:"originalSize"`
	Low          int64  `json:"low"`
	Medium       int64  `json:"medium"`
	Original     int64  `json:"original"`
}

// handleUpload accepts a multipart batch, produces the three quality
// variants for each file, and reports per-file and aggregate metrics.
// The first file that fails to transform aborts the whole batch.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	files := r.MultipartForm.File[UploadField]
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	resp := UploadResponse{Message: fmt.Sprintf("processed %d file(s)", len(files))}
	batchStart := time.Now()

	for _, header := range files {
		part, err := header.Open()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read %s", header.Filename), http.StatusInternalServerError)
			return
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read %s", header.Filename), http.StatusInternalServerError)
			return
		}

		fileStart := time.Now()
		variants, err := s.engine.TransformAll(data)
		if err != nil {
			s.logger.Error("transform failed",
				zap.String("file", header.Filename),
				zap.Error(err))
			http.Error(w, fmt.Sprintf("failed to process %s", header.Filename), http.StatusInternalServerError)
			return
		}
		elapsed := time.Since(fileStart)

		sizes := FileSizes{
			Name:         header.Filename,
			OriginalSize: int64(len(data)),
			Low:          int64(len(variants[resize.QualityLow])),
			Medium:       int64(len(variants[resize.QualityMedium])),
			Original:     int64(len(variants[resize.QualityOriginal])),
		}

		resp.Timings.Files = append(resp.Timings.Files, FileTiming{
			Name:       header.Filename,
			DurationMs: float64(elapsed.Microseconds()) / 1000.0,
		})
		resp.Sizes.Files = append(resp.Sizes.Files, sizes)
		resp.Sizes.TotalOriginalSize += sizes.OriginalSize
		resp.Sizes.TotalProcessedSize.Low += sizes.Low
		resp.Sizes.TotalProcessedSize.Medium += sizes.Medium
		resp.Sizes.TotalProcessedSize.Original += sizes.Original

		s.metrics.AddUploadBytes(sizes.OriginalSize)

		if s.store != nil && s.config.Resize.PersistVariants {
			// Fire and forget: persistence never delays or fails the
			// response.
			go s.store.SaveAll(header.Filename, variants)
		}
	}

	resp.Timings.TotalProcessingTime = float64(time.Since(batchStart).Microseconds()) / 1000.0

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode upload response", zap.Error(err))
	}
}
