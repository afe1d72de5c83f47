package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"
)

type ImageFormat string

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	MAC           string
	CellWidth     int
	TimeZone      *time.Location
	MinTimestamp  *time.Time
	MaxTimestamp  *time.Time
	MinAmplitude  *float64
	MaxAmplitude  *float64
	Verbose       bool
	NoAnnotations bool
}

func NewConfig() *Config {
	return &Config{
		Format:    ImagePNG,
		Theme:     EnhancedTheme,
		CellWidth: defaultCellWidth,
		TimeZone:  time.Local,
	}
}

// NewConfigFromCLI parses the command line flags
func NewConfigFromCLI(args []string, output io.Writer) (*Config, error) {
	c := NewConfig()

	fs := flag.NewFlagSet("heatmap", flag.ContinueOnError)
	fs.SetOutput(output)

	var imageFormat, theme, timeZone, start, end string
	var minAmplitude, maxAmplitude float64
	fs.StringVar(&c.DBPath, "db", "", "Path to the database file")
	fs.Int64Var(&c.SessionID, "s", 1, "Session ID")
	fs.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	fs.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	fs.StringVar(&theme, "theme", string(EnhancedTheme), "Color theme. [enhanced, classic, grayscale, thermal, marine]")
	fs.StringVar(&c.MAC, "mac", "", "Only render records from this transmitter MAC address")
	fs.IntVar(&c.CellWidth, "cell", defaultCellWidth, "Pixels per subcarrier")
	fs.StringVar(&timeZone, "tz", "Local", "Time zone for the time scale")
	fs.StringVar(&start, "start", "", "Start time, RFC 3339")
	fs.StringVar(&end, "end", "", "End time, RFC 3339")
	fs.Float64Var(&minAmplitude, "min-amplitude", 0, "Define a manual minimum amplitude (format nn.n)")
	fs.Float64Var(&maxAmplitude, "max-amplitude", 0, "Define a manual maximum amplitude (format nn.n)")
	fs.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	fs.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as time and subcarrier scales")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-amplitude":
			c.MinAmplitude = &minAmplitude
		case "max-amplitude":
			c.MaxAmplitude = &maxAmplitude
		}
	})

	imageFormat = strings.ToLower(imageFormat)

	var err error
	switch {
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case c.CellWidth <= 0:
		err = fmt.Errorf("invalid cell width: %d", c.CellWidth)
	}
	if err == nil {
		if _, ok := validImageFormats[ImageFormat(imageFormat)]; !ok {
			err = fmt.Errorf("invalid image format: %s", imageFormat)
		}
	}
	if err == nil {
		c.Theme, err = ParseColorTheme(strings.ToLower(theme))
	}
	if err == nil {
		c.TimeZone, err = time.LoadLocation(timeZone)
	}
	if err == nil {
		c.MinTimestamp, err = parseTime(start)
	}
	if err == nil {
		c.MaxTimestamp, err = parseTime(end)
	}
	if err == nil && c.MinAmplitude != nil && c.MaxAmplitude != nil && *c.MinAmplitude >= *c.MaxAmplitude {
		err = fmt.Errorf("min amplitude %0.1f must be below max amplitude %0.1f", *c.MinAmplitude, *c.MaxAmplitude)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}

	c.Format = ImageFormat(imageFormat)
	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}

func parseTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: %w", value, err)
	}
	return &t, nil
}
