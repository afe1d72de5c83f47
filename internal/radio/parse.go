package radio

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"unicode"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

// Field positions in an ESP32 CSI_DATA console line
const (
	fieldType             = 0
	fieldMAC              = 2
	fieldRSSI             = 3
	fieldChannel          = 16
	fieldSecondaryChannel = 17
	fieldLen              = 22

	minHeaderFields = fieldLen + 1

	linePrefix = "CSI_DATA"
)

// ErrNotCSI is returned for console lines that carry no CSI data
var ErrNotCSI = errors.New("not a CSI_DATA line")

// ParseLine parses an ESP32 CSI_DATA console line of the form
//
//	CSI_DATA,<id>,<mac>,<rssi>,<rate>,<sig_mode>,<mcs>,<bw>,<smoothing>,<not_sounding>,
//	<aggregation>,<stbc>,<fec>,<sgi>,<noise_floor>,<ampdu_cnt>,<channel>,<secondary_channel>,
//	<local_timestamp>,<ant>,<sig_len>,<rx_state>,<len>,<first_word>,"[i0,q0,i1,q1,...]"
//
// The I/Q list may be separated by commas or spaces.
func ParseLine(line string) (csi.RawFrame, error) {
	var frame csi.RawFrame

	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, linePrefix+",") {
		return frame, ErrNotCSI
	}

	open := strings.IndexByte(line, '[')
	if open < 0 {
		return frame, fmt.Errorf("missing csi data list")
	}
	end := strings.LastIndexByte(line, ']')
	if end < open {
		return frame, fmt.Errorf("unterminated csi data list")
	}

	header := strings.Split(strings.TrimRight(line[:open], `," `), ",")
	if len(header) < minHeaderFields {
		return frame, fmt.Errorf("invalid CSI_DATA line: not enough fields: %d", len(header))
	}
	if strings.TrimSpace(header[fieldType]) != linePrefix {
		return frame, ErrNotCSI
	}

	mac, err := net.ParseMAC(strings.TrimSpace(header[fieldMAC]))
	if err != nil || len(mac) != len(frame.MAC) {
		return frame, fmt.Errorf("invalid mac address: %q", header[fieldMAC])
	}
	copy(frame.MAC[:], mac)

	rssi, err := strconv.ParseInt(strings.TrimSpace(header[fieldRSSI]), 10, 8)
	if err != nil {
		return frame, fmt.Errorf("invalid rssi: %w", err)
	}
	frame.RSSI = int8(rssi)

	channel, err := strconv.ParseUint(strings.TrimSpace(header[fieldChannel]), 10, 8)
	if err != nil {
		return frame, fmt.Errorf("invalid channel: %w", err)
	}
	frame.Channel = uint8(channel)

	secondary, err := strconv.ParseUint(strings.TrimSpace(header[fieldSecondaryChannel]), 10, 8)
	if err != nil {
		return frame, fmt.Errorf("invalid secondary channel: %w", err)
	}
	frame.SecondaryChannel = uint8(secondary)

	length, err := strconv.Atoi(strings.TrimSpace(header[fieldLen]))
	if err != nil || length < 0 {
		return frame, fmt.Errorf("invalid csi length: %q", header[fieldLen])
	}

	values := strings.FieldsFunc(line[open+1:end], func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if length > 0 && len(values) != length {
		return frame, fmt.Errorf("csi length mismatch: header says %d, got %d values", length, len(values))
	}

	frame.IQ = make([]byte, len(values))
	for i, v := range values {
		n, err := strconv.ParseInt(v, 10, 8)
		if err != nil {
			return csi.RawFrame{}, fmt.Errorf("invalid csi value at %d: %w", i, err)
		}
		frame.IQ[i] = byte(int8(n))
	}

	return frame, nil
}
