package layout

import "math"

// Zoom bounds, in pixels per minute.
const (
	MinZoom     = 0.4
	MaxZoom     = 1.2
	DefaultZoom = 0.8
)

// Scale holds the presentation inputs of Place. All values are pixels.
type Scale struct {
	MinuteHeightPx   float64 `json:"minute_height_px"`
	CanvasWidthPx    float64 `json:"canvas_width_px"`
	GapPx            float64 `json:"gap_px"`
	LeftPaddingPx    float64 `json:"left_padding_px"`
	RightPaddingPx   float64 `json:"right_padding_px"`
	MinColumnWidthPx float64 `json:"min_column_width_px"`
}

// DefaultScale returns the stock grid metrics for a canvas of the given
// width at DefaultZoom.
func DefaultScale(canvasWidthPx float64) Scale {
	return Scale{
		MinuteHeightPx:   DefaultZoom,
		CanvasWidthPx:    canvasWidthPx,
		GapPx:            6,
		LeftPaddingPx:    8,
		RightPaddingPx:   8,
		MinColumnWidthPx: 40,
	}
}

// ClampZoom limits z to [lo, hi]. NaN maps to lo.
func ClampZoom(z, lo, hi float64) float64 {
	if math.IsNaN(z) || z < lo {
		return lo
	}
	return min(z, hi)
}

// WithZoom returns s with its minute height set from a zoom factor clamped
// to [MinZoom, MaxZoom].
func (s Scale) WithZoom(z float64) Scale {
	s.MinuteHeightPx = ClampZoom(z, MinZoom, MaxZoom)
	return s
}

// GridHeightPx is the height of a full day at this scale.
func (s Scale) GridHeightPx() float64 {
	return 24 * 60 * max(0, s.MinuteHeightPx)
}

// Rect is a block's position on the day canvas.
type Rect struct {
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
}

// Place maps a window in column of count columns to a rectangle. The height
// never drops below MinDurationMinutes worth of pixels and the width never
// below MinColumnWidthPx, even when that overflows the canvas. Degenerate
// inputs (no canvas, negative sizes, count < 1) are clamped, never rejected.
func Place(w TimeWindow, column, count int, s Scale) Rect {
	count = max(count, 1)
	column = min(max(column, 0), count-1)
	mh := max(0, s.MinuteHeightPx)
	gap := max(0, s.GapPx)
	padL := max(0, s.LeftPaddingPx)

	inner := max(0, s.CanvasWidthPx-padL-max(0, s.RightPaddingPx))
	width := max(s.MinColumnWidthPx, (inner-float64(count-1)*gap)/float64(count), 0)

	return Rect{
		Top:    float64(w.StartMinute) * mh,
		Height: max(MinDurationMinutes*mh, float64(w.EndMinute-w.StartMinute)*mh),
		Left:   padL + float64(column)*(width+gap),
		Width:  width,
	}
}
