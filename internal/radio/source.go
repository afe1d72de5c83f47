package radio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.bug.st/serial"
)

// SerialOptions describes the serial connection to an ESP32 CSI node
type SerialOptions struct {
	Port     string `yaml:"port" json:"port"`
	BaudRate int    `yaml:"baudRate" json:"baudRate"`
	DataBits int    `yaml:"dataBits" json:"dataBits"`
	Parity   string `yaml:"parity" json:"parity"`
	StopBits int    `yaml:"stopBits" json:"stopBits"`
}

// DefaultBaudRate is the console speed of the CSI firmware
const DefaultBaudRate = 921600

// Normalize validates the options and applies defaults for any unset values
func (o SerialOptions) Normalize() (SerialOptions, error) {
	opts := o

	if strings.TrimSpace(opts.Port) == "" {
		return opts, fmt.Errorf("radio.SerialOptions: serial port is required")
	}

	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.BaudRate < 0 {
		return opts, fmt.Errorf("radio.SerialOptions: invalid baud rate: %d", opts.BaudRate)
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("radio.SerialOptions: invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("radio.SerialOptions: invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("radio.SerialOptions: unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return opts, nil
}

// Validate checks that the options can be normalized
func (o SerialOptions) Validate() error {
	_, err := o.Normalize()
	return err
}

// SerialMode converts the options into the mode required by go.bug.st/serial
func (o SerialOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}

// PortOpener opens a serial port; serial.Open satisfies it
type PortOpener func(name string, mode *serial.Mode) (serial.Port, error)

// OpenSerial opens the serial port described by opts. A nil opener uses serial.Open.
func OpenSerial(opts SerialOptions, opener PortOpener) (io.ReadCloser, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	if opener == nil {
		opener = serial.Open
	}

	port, err := opener(opts.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("error opening serial port %s: %w", opts.Port, err)
	}

	return port, nil
}

// OpenReplay opens a captured console log. When loop is set the file is
// replayed from the start each time its end is reached.
func OpenReplay(path string, loop bool) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening replay file: %w", err)
	}

	if !loop {
		return f, nil
	}
	return &loopReader{f: f}, nil
}

type loopReader struct {
	f    *os.File
	read bool // at least one byte was read since the last rewind
	last byte
}

func (r *loopReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if n > 0 {
		r.read = true
		r.last = p[n-1]
	}
	if !errors.Is(err, io.EOF) {
		return n, err
	}

	// an empty file would spin forever
	if !r.read {
		return n, io.EOF
	}
	r.read = false

	// keep the last line of one pass apart from the first line of the next
	if r.last != '\n' && n < len(p) {
		p[n] = '\n'
		r.last = '\n'
		n++
	}

	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return n, err
	}
	return n, nil
}

func (r *loopReader) Close() error {
	return r.f.Close()
}
