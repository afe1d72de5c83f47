package app

import (
	"fmt"
	"image/color"
	"math"
)

// ColorTheme is a named amplitude-to-colour scheme
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red
	GrayscaleTheme ColorTheme = "grayscale" // Black to white
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan
	EnhancedTheme  ColorTheme = "enhanced"  // Black to blue to cyan to yellow to red

	DefaultColorMapSize = 256
)

var colorThemes = map[ColorTheme]func(float64) color.Color{
	ClassicTheme: func(v float64) color.Color {
		return HSV{H: 240 - v*240, S: 0.9 + v*0.1, V: math.Pow(v, 0.7)}.RGB()
	},
	GrayscaleTheme: func(v float64) color.Color {
		g := uint8(math.Pow(v, 0.7) * 255)
		return color.RGBA{R: g, G: g, B: g, A: 255}
	},
	ThermalTheme: func(v float64) color.Color {
		switch {
		case v < 0.33:
			return color.RGBA{R: uint8(v * 3 * 255), A: 255}
		case v < 0.66:
			return color.RGBA{R: 255, G: uint8((v - 0.33) * 3 * 255), A: 255}
		default:
			return color.RGBA{R: 255, G: 255, B: uint8(min((v-0.66)*3, 1) * 255), A: 255}
		}
	},
	MarineTheme: func(v float64) color.Color {
		return HSV{H: 240 - v*60, S: 1 - v*0.8, V: 0.3 + math.Pow(v, 0.6)*0.7}.RGB()
	},
	EnhancedTheme: func(v float64) color.Color {
		enhanced := math.Pow(v, 0.7)
		switch {
		case v < 0.25:
			return HSV{H: 240, S: 1, V: min(enhanced*4, 1)}.RGB()
		case v < 0.5:
			return HSV{H: 240 - (v-0.25)*240, S: 1, V: min(enhanced*1.5, 1)}.RGB()
		case v < 0.75:
			return HSV{H: 180 - (v-0.5)*4*120, S: 1, V: min(enhanced*1.5, 1)}.RGB()
		default:
			return HSV{H: 60 - (v-0.75)*4*60, S: 1, V: 1}.RGB()
		}
	},
}

// ParseColorTheme returns the theme with the given name
func ParseColorTheme(name string) (ColorTheme, error) {
	theme := ColorTheme(name)
	if _, ok := colorThemes[theme]; !ok {
		return "", fmt.Errorf("unknown color theme: %s", name)
	}
	return theme, nil
}

// ColorMapper maps amplitudes to colours through a pre-computed lookup table
type ColorMapper struct {
	colorMap       []color.Color
	theme          func(float64) color.Color
	themeName      ColorTheme
	valuePerIndex  float64
	boundsMin      float64
	noDataColor    color.Color
	flaggedColor   color.Color
	normalizedSize float64
}

// NewColorMapper creates a colour mapper for the given theme and bounds.
// An unknown theme falls back to EnhancedTheme.
func NewColorMapper(theme ColorTheme, bounds AmplitudeBounds) *ColorMapper {
	return NewColorMapperWithSize(theme, bounds, DefaultColorMapSize)
}

// NewColorMapperWithSize creates a colour mapper with size pre-computed colours
func NewColorMapperWithSize(theme ColorTheme, bounds AmplitudeBounds, size int) *ColorMapper {
	if size <= 1 {
		size = DefaultColorMapSize
	}

	fn, ok := colorThemes[theme]
	if !ok {
		theme, fn = EnhancedTheme, colorThemes[EnhancedTheme]
	}

	cm := &ColorMapper{
		colorMap:       make([]color.Color, size),
		theme:          fn,
		themeName:      theme,
		noDataColor:    color.Black,
		flaggedColor:   color.RGBA{R: 220, A: 255},
		normalizedSize: float64(size - 1),
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = cm.theme(float64(i) / cm.normalizedSize)
	}
	cm.UpdateBounds(bounds)
	return cm
}

// UpdateBounds changes the amplitude range covered by the colour map
func (cm *ColorMapper) UpdateBounds(bounds AmplitudeBounds) {
	cm.boundsMin = bounds.Min
	cm.valuePerIndex = (bounds.Max - bounds.Min) / cm.normalizedSize
}

// Color returns the colour for an amplitude. NaN marks a missing value.
func (cm *ColorMapper) Color(amplitude float64) color.Color {
	if math.IsNaN(amplitude) {
		return cm.noDataColor
	}
	if cm.valuePerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((amplitude - cm.boundsMin) / cm.valuePerIndex)
	switch {
	case index < 0:
		return cm.colorMap[0]
	case index >= len(cm.colorMap):
		return cm.colorMap[len(cm.colorMap)-1]
	}
	return cm.colorMap[index]
}

// ThemeName returns the active theme
func (cm *ColorMapper) ThemeName() ColorTheme {
	return cm.themeName
}

// HSV is a colour in HSV space: H in [0,360), S and V in [0,1]
type HSV struct {
	H, S, V float64
}

// RGB converts the colour to RGB
func (hsv HSV) RGB() color.Color {
	if hsv.S <= 0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8(hsv.V * (1 - hsv.S) * 255)
	q := uint8(hsv.V * (1 - hsv.S*f) * 255)
	t := uint8(hsv.V * (1 - hsv.S*(1-f)) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

// FlaggedColor returns the marker colour for significant records
func (cm *ColorMapper) FlaggedColor() color.Color {
	return cm.flaggedColor
}
