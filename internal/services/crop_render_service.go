package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	domain "github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/platform/numeric"
	"github.com/hanko-field/configurator/internal/platform/storage"
)

var (
	// ErrCropRenderInvalidJob indicates the job cannot be rendered as described.
	ErrCropRenderInvalidJob = errors.New("crop render: invalid job")
	// ErrCropRenderSourceNotFound indicates the source object is missing.
	ErrCropRenderSourceNotFound = errors.New("crop render: source not found")
	// ErrCropRenderUnavailable signals that the queue or object store failed.
	ErrCropRenderUnavailable = errors.New("crop render: unavailable")
)

const (
	cropRenderJobPrefix       = "crj_"
	maxRenderTargetPx         = 12000
	maxRenderSourcePixels     = 100_000_000
	defaultRenderJPEGQuality  = 90
	defaultRenderSourceLimit  = int64(40 << 20)
	cropRenderMetricNamespace = "github.com/hanko-field/configurator/internal/services/render"
)

// CropRenderPublisher enqueues render jobs.
type CropRenderPublisher interface {
	PublishCropRender(ctx context.Context, job CropRenderJob) (string, error)
}

// RenderObjectStore reads sources and writes rendered rasters.
type RenderObjectStore interface {
	Read(ctx context.Context, bucket, name string, maxBytes int64) ([]byte, storage.ObjectInfo, error)
	Write(ctx context.Context, bucket, name, contentType string, data []byte, metadata map[string]string) (storage.ObjectInfo, error)
	SignedURL(ctx context.Context, bucket, name string) (string, error)
}

// EnqueueCropRenderCommand describes the raster to produce. Exactly one of
// Crop or LegacyCrop may be set; neither means the default crop.
type EnqueueCropRenderCommand struct {
	DesignID     string
	SourceObject string
	TargetW      int
	TargetH      int
	Crop         *CropState
	LegacyCrop   *LegacyCropState
	FrameW       float64
	FrameH       float64
}

// CropRenderServiceDeps wires the render pipeline.
type CropRenderServiceDeps struct {
	Geometry       *CropGeometryEngine
	Publisher      CropRenderPublisher
	Objects        RenderObjectStore
	SourcesBucket  string
	RendersBucket  string
	JPEGQuality    int
	MaxSourceBytes int64
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(context.Context, string, map[string]any)
	Meter          metric.Meter
}

type cropRenderService struct {
	geometry       *CropGeometryEngine
	publisher      CropRenderPublisher
	objects        RenderObjectStore
	sourcesBucket  string
	rendersBucket  string
	quality        int
	maxSourceBytes int64
	now            func() time.Time
	newID          func() string
	logger         func(context.Context, string, map[string]any)
	jobs           metric.Int64Counter
}

// NewCropRenderService constructs the render pipeline.
func NewCropRenderService(deps CropRenderServiceDeps) (CropRenderService, error) {
	if deps.Publisher == nil {
		return nil, errors.New("crop render service: publisher is required")
	}
	if deps.Objects == nil {
		return nil, errors.New("crop render service: object store is required")
	}
	sources := strings.TrimSpace(deps.SourcesBucket)
	renders := strings.TrimSpace(deps.RendersBucket)
	if sources == "" || renders == "" {
		return nil, errors.New("crop render service: sources and renders buckets are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	geometry := deps.Geometry
	if geometry == nil {
		geometry = NewCropGeometryEngine(CropGeometryEngineDeps{Logger: logger, Meter: deps.Meter})
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	quality := deps.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultRenderJPEGQuality
	}
	maxBytes := deps.MaxSourceBytes
	if maxBytes <= 0 {
		maxBytes = defaultRenderSourceLimit
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(cropRenderMetricNamespace)
	}
	counter, err := meter.Int64Counter(
		"crop.render.jobs",
		metric.WithDescription("Count of crop render jobs by stage and outcome"),
	)
	if err != nil {
		logger(context.Background(), "crop.render.metric_unavailable", map[string]any{"error": err.Error()})
	}

	return &cropRenderService{
		geometry:       geometry,
		publisher:      deps.Publisher,
		objects:        deps.Objects,
		sourcesBucket:  sources,
		rendersBucket:  renders,
		quality:        quality,
		maxSourceBytes: maxBytes,
		now:            func() time.Time { return clock().UTC() },
		newID:          idGen,
		logger:         logger,
		jobs:           counter,
	}, nil
}

// Enqueue validates the request and publishes a job. Legacy normalized
// offsets are converted to pixels against the frame, or the target when no
// frame is given.
func (s *cropRenderService) Enqueue(ctx context.Context, cmd EnqueueCropRenderCommand) (CropRenderJob, error) {
	job, err := s.buildJob(cmd)
	if err != nil {
		s.record(ctx, "enqueue", "invalid")
		return CropRenderJob{}, err
	}
	messageID, err := s.publisher.PublishCropRender(ctx, job)
	if err != nil {
		s.record(ctx, "enqueue", "failed")
		s.logger(ctx, "crop.render.enqueue.failed", map[string]any{"jobId": job.JobID, "designId": job.DesignID, "error": err.Error()})
		return CropRenderJob{}, fmt.Errorf("%w: %v", ErrCropRenderUnavailable, err)
	}
	s.record(ctx, "enqueue", "ok")
	s.logger(ctx, "crop.render.enqueued", map[string]any{
		"jobId":     job.JobID,
		"designId":  job.DesignID,
		"messageId": messageID,
		"target":    strconv.Itoa(job.TargetW) + "x" + strconv.Itoa(job.TargetH),
	})
	return job, nil
}

func (s *cropRenderService) buildJob(cmd EnqueueCropRenderCommand) (CropRenderJob, error) {
	var problems []string
	designID := strings.TrimSpace(cmd.DesignID)
	if designID == "" || strings.ContainsAny(designID, "/\\") || strings.Contains(designID, "..") {
		problems = append(problems, "designId is required and must not contain path separators")
	}
	source, err := storage.ValidateObjectName(cmd.SourceObject)
	if err != nil {
		problems = append(problems, "sourceObject: "+err.Error())
	}
	if cmd.TargetW < 1 || cmd.TargetH < 1 || cmd.TargetW > maxRenderTargetPx || cmd.TargetH > maxRenderTargetPx {
		problems = append(problems, fmt.Sprintf("target size must be between 1 and %d pixels per side", maxRenderTargetPx))
	}
	hasFrame := cmd.FrameW != 0 || cmd.FrameH != 0
	if hasFrame && !numeric.ValidSize(cmd.FrameW, cmd.FrameH) {
		problems = append(problems, "frame size must be positive and finite when given")
	}

	crop := domain.DefaultCropState()
	switch {
	case cmd.Crop != nil && cmd.LegacyCrop != nil:
		problems = append(problems, "crop and legacyCrop are mutually exclusive")
	case cmd.Crop != nil:
		crop = *cmd.Crop
	case cmd.LegacyCrop != nil:
		container := Size{W: float64(cmd.TargetW), H: float64(cmd.TargetH)}
		if hasFrame {
			container = Size{W: cmd.FrameW, H: cmd.FrameH}
		}
		crop = cmd.LegacyCrop.Resolve(container)
	}
	if !numeric.IsPositiveFinite(crop.Scale) || !numeric.IsFinite(crop.X) || !numeric.IsFinite(crop.Y) {
		problems = append(problems, "crop must have a positive finite scale and finite offsets")
	} else if crop.Scale < MinZoom || crop.Scale > MaxZoom {
		problems = append(problems, fmt.Sprintf("crop scale must be between %g and %g", MinZoom, MaxZoom))
	}

	if len(problems) > 0 {
		return CropRenderJob{}, fmt.Errorf("%w: %s", ErrCropRenderInvalidJob, strings.Join(problems, "; "))
	}
	job := CropRenderJob{
		JobID:        cropRenderJobPrefix + s.newID(),
		DesignID:     designID,
		SourceObject: source,
		TargetW:      cmd.TargetW,
		TargetH:      cmd.TargetH,
		Crop:         crop,
		QueuedAt:     s.now(),
	}
	if hasFrame {
		job.FrameW, job.FrameH = cmd.FrameW, cmd.FrameH
	}
	return job, nil
}

// Render extracts the print raster for job and stores it as JPEG. The output
// name depends only on the job, so redelivered jobs overwrite their own output.
func (s *cropRenderService) Render(ctx context.Context, job CropRenderJob) (CropRenderResult, error) {
	start := time.Now()
	if strings.TrimSpace(job.JobID) == "" {
		s.record(ctx, "render", "invalid")
		return CropRenderResult{}, fmt.Errorf("%w: jobId is required", ErrCropRenderInvalidJob)
	}
	object, err := storage.RenderPath(job.DesignID, job.JobID, job.TargetW, job.TargetH)
	if err != nil {
		s.record(ctx, "render", "invalid")
		return CropRenderResult{}, fmt.Errorf("%w: %v", ErrCropRenderInvalidJob, err)
	}
	source, err := storage.ValidateObjectName(job.SourceObject)
	if err != nil {
		s.record(ctx, "render", "invalid")
		return CropRenderResult{}, fmt.Errorf("%w: %v", ErrCropRenderInvalidJob, err)
	}

	data, _, err := s.objects.Read(ctx, s.sourcesBucket, source, s.maxSourceBytes)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		s.record(ctx, "render", "source_missing")
		return CropRenderResult{}, fmt.Errorf("%w: %s", ErrCropRenderSourceNotFound, source)
	case errors.Is(err, storage.ErrObjectTooLarge):
		s.record(ctx, "render", "invalid")
		return CropRenderResult{}, fmt.Errorf("%w: %v", ErrCropRenderInvalidJob, err)
	case err != nil:
		s.record(ctx, "render", "failed")
		return CropRenderResult{}, fmt.Errorf("%w: %v", ErrCropRenderUnavailable, err)
	}

	src, err := decodeSource(data)
	if err != nil {
		s.record(ctx, "render", "invalid")
		return CropRenderResult{}, fmt.Errorf("%w: %v", ErrCropRenderInvalidJob, err)
	}

	bounds := src.Bounds()
	params := ExtractParams{
		OrigW:   float64(bounds.Dx()),
		OrigH:   float64(bounds.Dy()),
		TargetW: float64(job.TargetW),
		TargetH: float64(job.TargetH),
		// A sub-cover zoom would yield a raster smaller than the object name says.
		Scale:  numeric.Clamp(job.Crop.Scale, MinZoom, MaxZoom),
		X:      job.Crop.X,
		Y:      job.Crop.Y,
		FrameW: job.FrameW,
		FrameH: job.FrameH,
	}
	rect := s.geometry.ExtractRect(ctx, params)
	resizedW, resizedH, ok := s.geometry.ResizedSize(params)
	if !ok {
		s.record(ctx, "render", "invalid")
		return CropRenderResult{}, fmt.Errorf("%w: cannot size %dx%d source for %dx%d target", ErrCropRenderInvalidJob, bounds.Dx(), bounds.Dy(), job.TargetW, job.TargetH)
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Width, rect.Height))
	kx := float64(resizedW) / float64(bounds.Dx())
	ky := float64(resizedH) / float64(bounds.Dy())
	// Source to destination: resize by the rounded factors, then shift the
	// extraction window to the origin.
	s2d := f64.Aff3{
		kx, 0, -float64(kx*float64(bounds.Min.X)) - float64(rect.Left),
		0, ky, -float64(ky*float64(bounds.Min.Y)) - float64(rect.Top),
	}
	draw.CatmullRom.Transform(dst, s2d, src, bounds, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: s.quality}); err != nil {
		s.record(ctx, "render", "failed")
		return CropRenderResult{}, fmt.Errorf("crop render: encode jpeg: %w", err)
	}

	info, err := s.objects.Write(ctx, s.rendersBucket, object, "image/jpeg", buf.Bytes(), map[string]string{
		"jobId":    job.JobID,
		"designId": job.DesignID,
		"rect":     fmt.Sprintf("%d,%d,%d,%d", rect.Left, rect.Top, rect.Width, rect.Height),
		"resized":  fmt.Sprintf("%dx%d", resizedW, resizedH),
	})
	if err != nil {
		s.record(ctx, "render", "failed")
		return CropRenderResult{}, fmt.Errorf("%w: %v", ErrCropRenderUnavailable, err)
	}

	result := CropRenderResult{
		JobID:      job.JobID,
		DesignID:   job.DesignID,
		Bucket:     s.rendersBucket,
		Object:     object,
		Rect:       rect,
		Width:      rect.Width,
		Height:     rect.Height,
		Bytes:      info.Size,
		RenderedAt: s.now(),
	}
	if url, err := s.objects.SignedURL(ctx, s.rendersBucket, object); err != nil {
		s.logger(ctx, "crop.render.sign.failed", map[string]any{"jobId": job.JobID, "error": err.Error()})
	} else {
		result.URL = url
	}

	s.record(ctx, "render", "ok")
	s.logger(ctx, "crop.render.completed", map[string]any{
		"jobId":      job.JobID,
		"designId":   job.DesignID,
		"object":     object,
		"rect":       rect,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func decodeSource(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported source image: %v", err)
	}
	if cfg.Width < 1 || cfg.Height < 1 || int64(cfg.Width)*int64(cfg.Height) > maxRenderSourcePixels {
		return nil, fmt.Errorf("source %s image %dx%d is outside supported dimensions", format, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s source: %v", format, err)
	}
	return img, nil
}

func (s *cropRenderService) record(ctx context.Context, stage, outcome string) {
	if s.jobs == nil {
		return
	}
	s.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage), attribute.String("outcome", outcome)))
}
