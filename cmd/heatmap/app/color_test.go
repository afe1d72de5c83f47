package app

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColorTheme(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"classic", "grayscale", "thermal", "marine", "enhanced"} {
		theme, err := ParseColorTheme(name)
		require.NoError(t, err, name)
		assert.Equal(t, ColorTheme(name), theme)
	}

	_, err := ParseColorTheme("rainbow")
	assert.Error(t, err)
}

func TestColorMapper_Grayscale(t *testing.T) {
	t.Parallel()

	cm := NewColorMapper(GrayscaleTheme, AmplitudeBounds{Min: 10, Max: 20})

	assert.Equal(t, color.RGBA{A: 255}, cm.Color(10))
	assert.Equal(t, color.RGBA{A: 255}, cm.Color(-5), "below range clamps to the first colour")
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, cm.Color(21))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, cm.Color(1000), "above range clamps to the last colour")
	assert.Equal(t, color.Black, cm.Color(math.NaN()))

	mid := cm.Color(15).(color.RGBA)
	assert.Greater(t, mid.R, uint8(0))
	assert.Less(t, mid.R, uint8(255))
}

func TestColorMapper_UnknownThemeAndEmptyRange(t *testing.T) {
	t.Parallel()

	cm := NewColorMapperWithSize("nope", AmplitudeBounds{Min: 5, Max: 5}, 0)
	assert.Equal(t, EnhancedTheme, cm.ThemeName())
	assert.Len(t, cm.colorMap, DefaultColorMapSize)
	assert.Equal(t, cm.colorMap[0], cm.Color(5))

	cm.UpdateBounds(AmplitudeBounds{Min: 0, Max: 10})
	assert.Equal(t, cm.colorMap[DefaultColorMapSize-1], cm.Color(11))
}

func TestHSV_RGB(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		hsv      HSV
		expected color.RGBA
	}{
		{"red", HSV{H: 0, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{"green", HSV{H: 120, S: 1, V: 1}, color.RGBA{G: 255, A: 255}},
		{"blue", HSV{H: 240, S: 1, V: 1}, color.RGBA{B: 255, A: 255}},
		{"full circle is red", HSV{H: 360, S: 1, V: 1}, color.RGBA{R: 255, A: 255}},
		{"grey", HSV{H: 90, S: 0, V: 0.5}, color.RGBA{R: 127, G: 127, B: 127, A: 255}},
		{"black", HSV{H: 200, S: 1, V: 0}, color.RGBA{A: 255}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.hsv.RGB())
		})
	}
}
