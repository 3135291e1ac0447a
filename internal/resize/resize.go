// Package resize produces the three derived quality variants of an
// uploaded image: low, medium, and original fidelity.
package resize

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Quality identifies one of the three output tiers.
type Quality string

const (
	QualityLow      Quality = "low"
	QualityMedium   Quality = "medium"
	QualityOriginal Quality = "original"
)

// Tiers lists the output tiers in the order they are produced.
var Tiers = []Quality{QualityLow, QualityMedium, QualityOriginal}

// Options control a single transform pass. A MaxWidth of 0 means the
// image keeps its original dimensions.
type Options struct {
	MaxWidth    int
	JPEGQuality int
}

// baseQuality is the assumed encode quality of incoming images; the
// per-tier targets are derived from it.
const baseQuality = 82

func lowQuality() int {
	q := baseQuality - 40
	if q < 30 {
		q = 30
	}
	if q > 50 {
		q = 50
	}
	return q
}

func mediumQuality() int {
	// Bound order is inverted relative to lowQuality: the upper bound is
	// applied first, so the result is always pinned to 60.
	q := baseQuality - 15
	if q < 80 {
		q = 80
	}
	if q > 60 {
		q = 60
	}
	return q
}

// TierOptions returns the transform options for a quality tier.
func TierOptions(q Quality) Options {
	switch q {
	case QualityLow:
		return Options{MaxWidth: 640, JPEGQuality: lowQuality()}
	case QualityMedium:
		return Options{MaxWidth: 1280, JPEGQuality: mediumQuality()}
	default:
		return Options{MaxWidth: 0, JPEGQuality: 85}
	}
}

// Engine wraps the image codec behind the transform operation the upload
// handler needs.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a transform engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Transform decodes data, scales it down to opts.MaxWidth if it is wider,
// and re-encodes it as JPEG at opts.JPEGQuality. Non-JPEG inputs come out
// as JPEG.
func (e *Engine) Transform(data []byte, opts Options) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if opts.MaxWidth > 0 && img.Bounds().Dx() > opts.MaxWidth {
		img = imaging.Resize(img, opts.MaxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// TransformAll produces every quality tier for one image. It fails on the
// first tier that cannot be produced.
func (e *Engine) TransformAll(data []byte) (map[Quality][]byte, error) {
	out := make(map[Quality][]byte, len(Tiers))
	for _, tier := range Tiers {
		variant, err := e.Transform(data, TierOptions(tier))
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier, err)
		}
		out[tier] = variant
	}
	return out, nil
}
