package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/propmap/propmap/internal/core/domain"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/pkg/geospatial"
	"github.com/propmap/propmap/internal/pkg/metrics"
)

// BoundsService resolves the visible box for a viewport. The map engine's own
// answer is preferred; the padded approximation covers every case where the
// engine cannot give one.
type BoundsService struct {
	engine ports.MapEngine
	log    *slog.Logger
}

// NewBoundsService creates a BoundsService. engine may be nil.
func NewBoundsService(engine ports.MapEngine, log *slog.Logger) *BoundsService {
	if log == nil {
		log = slog.Default()
	}
	return &BoundsService{engine: engine, log: log}
}

// Bounds never fails.
func (s *BoundsService) Bounds(ctx context.Context, vp domain.Viewport) domain.BoundingBox {
	vp = vp.Clamp()
	if s.engine == nil || !s.engine.Ready() {
		s.log.DebugContext(ctx, "map engine not ready, approximating bounds", "zoom", vp.Zoom)
		metrics.BoundsFallbacks.WithLabelValues("not_ready").Inc()
		return geospatial.ApproximateBounds(vp)
	}

	box, err := s.visible(ctx)
	if err == nil && !box.Valid() {
		err = fmt.Errorf("engine returned invalid bounds %+v", box)
	}
	if err != nil {
		s.log.WarnContext(ctx, "map engine bounds failed, approximating", "error", err)
		metrics.BoundsFallbacks.WithLabelValues("engine_error").Inc()
		return geospatial.ApproximateBounds(vp)
	}
	return box
}

func (s *BoundsService) visible(ctx context.Context) (box domain.BoundingBox, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panicked: %v", r)
		}
	}()
	return s.engine.VisibleBounds(ctx)
}
