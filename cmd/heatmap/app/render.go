package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 120.0
	fontSize       = 10.0
	lineSpacing    = 1.4
	tickMarkLength = 5
	pixelsPerLabel = 100
	rowsPerLabel   = 120
	markerWidth    = 6

	defaultCellWidth = 8

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 110
	defaultBottomBorder = 70
	defaultRightBorder  = 40

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

// BorderConfig defines the sizes of the white space around the heatmap
type BorderConfig struct {
	Top    int // Space for the subcarrier scale
	Left   int // Space for the time scale
	Bottom int // Space for the information bar
	Right  int // Space for significance markers
}

// RenderConfig holds the heatmap rendering options
type RenderConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location

	FontSize      float64
	ColorTheme    ColorTheme
	ColorMapSize  int
	CellWidth     int // Pixels per subcarrier
	NoAnnotations bool

	// Manual colour scale bounds, nil to use the percentile bounds
	MinAmplitude *float64
	MaxAmplitude *float64

	BorderConfig BorderConfig
}

// HeatmapRenderer draws an amplitude grid as an image, subcarriers on the X
// axis and records on the Y axis
type HeatmapRenderer struct {
	config RenderConfig
}

func NewHeatmapRenderer(config RenderConfig) *HeatmapRenderer {
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.CellWidth <= 0 {
		config.CellWidth = defaultCellWidth
	}

	switch {
	case config.NoAnnotations:
		config.BorderConfig = BorderConfig{}
	default:
		if config.BorderConfig.Top == 0 {
			config.BorderConfig.Top = defaultTopBorder
		}
		if config.BorderConfig.Left == 0 {
			config.BorderConfig.Left = defaultLeftBorder
		}
		if config.BorderConfig.Bottom == 0 {
			config.BorderConfig.Bottom = defaultBottomBorder
		}
		if config.BorderConfig.Right == 0 {
			config.BorderConfig.Right = defaultRightBorder
		}
	}

	return &HeatmapRenderer{config: config}
}

// Render draws the grid with its annotations
func (r *HeatmapRenderer) Render(grid *AmplitudeGrid) (*image.RGBA, error) {
	if grid.Width == 0 || grid.Height == 0 {
		return nil, fmt.Errorf("nothing to render: %dx%d grid", grid.Width, grid.Height)
	}

	borders := r.config.BorderConfig
	plotWidth := grid.Width * r.config.CellWidth

	img := image.NewRGBA(image.Rect(0, 0,
		borders.Left+plotWidth+borders.Right,
		borders.Top+grid.Height+borders.Bottom))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(borders.Left, borders.Top, borders.Left+plotWidth, borders.Top+grid.Height)

	bounds := grid.Bounds().Override(r.config.MinAmplitude, r.config.MaxAmplitude)
	colorMap := NewColorMapperWithSize(r.config.ColorTheme, bounds, r.config.ColorMapSize)

	if !r.config.NoAnnotations {
		ann, err := newAnnotator(annotatorConfig{
			TimeFormat:     r.config.TimeFormat,
			DatetimeFormat: r.config.DatetimeFormat,
			Location:       r.config.Location,
			FontSize:       r.config.FontSize,
			Borders:        borders,
			CellWidth:      r.config.CellWidth,
		})
		if err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		if err = ann.annotate(img, grid, bounds); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
		r.renderMarkers(img, area, grid, colorMap.FlaggedColor())
	}

	r.renderGrid(img, area, grid, colorMap)
	return img, nil
}

func (r *HeatmapRenderer) renderGrid(img *image.RGBA, area image.Rectangle, grid *AmplitudeGrid, colorMap *ColorMapper) {
	for y := range grid.Height {
		for sc := range grid.Width {
			c := colorMap.Color(grid.Value(y, sc))
			x0 := area.Min.X + sc*r.config.CellWidth
			for x := x0; x < x0+r.config.CellWidth; x++ {
				img.Set(x, area.Min.Y+y, c)
			}
		}
	}
}

// renderMarkers flags significant records in the right border
func (r *HeatmapRenderer) renderMarkers(img *image.RGBA, area image.Rectangle, grid *AmplitudeGrid, c color.Color) {
	x0 := area.Max.X + 2
	for y, flagged := range grid.RowFlagged {
		if !flagged {
			continue
		}
		for x := x0; x < x0+markerWidth; x++ {
			img.Set(x, area.Min.Y+y, c)
		}
	}
}

type annotatorConfig struct {
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
	CellWidth      int
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, grid *AmplitudeGrid, bounds AmplitudeBounds) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	if err := a.drawSubcarrierScale(img, grid); err != nil {
		return fmt.Errorf("drawing subcarrier scale: %w", err)
	}
	if err := a.drawTimeScale(img, grid); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := a.drawInfoBar(img, grid, bounds); err != nil {
		return fmt.Errorf("drawing info bar: %w", err)
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

// drawSubcarrierScale labels subcarriers with their offset from the channel centre
func (a *annotator) drawSubcarrierScale(img *image.RGBA, grid *AmplitudeGrid) error {
	step := subcarrierStep(a.config.CellWidth)
	textY := a.config.Borders.Top - tickMarkLength - a.fontHeight()/3

	for sc := 0; sc < grid.Width; sc += step {
		x := a.config.Borders.Left + sc*a.config.CellWidth + a.config.CellWidth/2

		for y := a.config.Borders.Top - tickMarkLength; y < a.config.Borders.Top; y++ {
			img.Set(x, y, color.Black)
		}

		label := formatOffset(grid.SubcarrierOffset(sc))
		width := font.MeasureString(a.fontFace, label)
		pt := freetype.Pt(x-width.Round()/2, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing subcarrier label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, grid *AmplitudeGrid) error {
	metrics := a.fontFace.Metrics()
	fontHeight := a.fontHeight()

	for row := 0; row < grid.Height; row += rowsPerLabel {
		imgY := a.config.Borders.Top + row

		for x := a.config.Borders.Left - tickMarkLength; x < a.config.Borders.Left; x++ {
			img.Set(x, imgY, color.Black)
		}

		label := grid.RowTimes[row].In(a.config.Location).Format(a.config.TimeFormat)
		textY := imgY + fontHeight/2 - metrics.Descent.Round()
		pt := freetype.Pt(10, textY)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing time label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, grid *AmplitudeGrid, bounds AmplitudeBounds) error {
	band := fmt.Sprintf("Channel %d", grid.Channel)
	if center := grid.CenterFrequency(); center > 0 {
		band += " @ " + formatFrequency(center)
	}

	lines := []string{
		fmt.Sprintf("%s; %s subcarriers x %s records; %s significant",
			band, humanize.Comma(int64(grid.Width)), humanize.Comma(int64(grid.Height)),
			humanize.Comma(int64(grid.Flagged))),
		fmt.Sprintf("Time: %s - %s; Amplitude: %s - %s",
			grid.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
			grid.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat),
			humanize.FtoaWithDigits(bounds.Min, 1), humanize.FtoaWithDigits(bounds.Max, 1)),
	}

	lineHeight := a.context.PointToFixed(a.config.FontSize * lineSpacing)
	pt := freetype.Pt(a.config.Borders.Left, img.Bounds().Max.Y-a.config.Borders.Bottom+a.fontHeight()+4)
	for _, line := range lines {
		if _, err := a.context.DrawString(line, pt); err != nil {
			return fmt.Errorf("drawing info text: %w", err)
		}
		pt.Y += lineHeight
	}
	return nil
}

// subcarrierStep picks a power of two number of subcarriers between labels
// so that labels are at least pixelsPerLabel apart
func subcarrierStep(cellWidth int) int {
	step := 1
	for step*cellWidth < pixelsPerLabel && step < 64 {
		step *= 2
	}
	return step
}

func formatOffset(hz float64) string {
	if hz == 0 {
		return "0"
	}
	sign := "+"
	if hz < 0 {
		sign = "-"
	}
	return sign + formatFrequency(math.Abs(hz))
}

func formatFrequency(hz float64) string {
	value, prefix := humanize.ComputeSI(hz)
	return humanize.FtoaWithDigits(value, 3) + " " + prefix + "Hz"
}
