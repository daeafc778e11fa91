package domain

import "time"

// CropRenderJob asks a worker to extract the print raster for a design. The
// crop is stored exactly as the client persisted it.
type CropRenderJob struct {
	JobID        string    `json:"jobId"`
	DesignID     string    `json:"designId"`
	SourceObject string    `json:"sourceObject"`
	TargetW      int       `json:"targetW"`
	TargetH      int       `json:"targetH"`
	Crop         CropState `json:"crop"`
	FrameW       float64   `json:"frameW,omitempty"`
	FrameH       float64   `json:"frameH,omitempty"`
	QueuedAt     time.Time `json:"queuedAt"`
}

// CropRenderResult describes the written raster.
type CropRenderResult struct {
	JobID      string    `json:"jobId"`
	DesignID   string    `json:"designId"`
	Bucket     string    `json:"bucket"`
	Object     string    `json:"object"`
	Rect       Rectangle `json:"rect"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Bytes      int64     `json:"bytes"`
	URL        string    `json:"url,omitempty"`
	RenderedAt time.Time `json:"renderedAt"`
}
