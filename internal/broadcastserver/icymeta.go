package broadcastserver

import (
	"io"
	"strings"
)

// icyMetaInterval is the byte interval between inline ICY metadata blocks
// when a stream opts in via icy_metadata = true, matching the de facto
// Shoutcast/Icecast convention (the value "16000" appears throughout the
// retrieval pack's ICY implementations).
const icyMetaInterval = 16000

// icyMetaWriter interleaves ICY inline metadata blocks into an audio byte
// stream every icyMetaInterval bytes, per the de facto Shoutcast protocol:
// a single length byte (in 16-byte units) followed by a
// "StreamTitle='...';" string padded to that length, or a single zero byte
// when there is nothing new to announce.
type icyMetaWriter struct {
	w        io.Writer
	interval int
	sent     int
	title    func() string
	lastSent string
}

func newICYMetaWriter(w io.Writer, title func() string) *icyMetaWriter {
	return &icyMetaWriter{w: w, interval: icyMetaInterval, title: title}
}

// Write splits chunk on m.interval boundaries, emitting a metadata block
// at each one. It never reorders or drops audio bytes.
func (m *icyMetaWriter) Write(chunk []byte) (int, error) {
	total := len(chunk)
	for len(chunk) > 0 {
		remaining := m.interval - m.sent
		n := remaining
		if n > len(chunk) {
			n = len(chunk)
		}
		if _, err := m.w.Write(chunk[:n]); err != nil {
			return 0, err
		}
		chunk = chunk[n:]
		m.sent += n

		if m.sent >= m.interval {
			if err := m.writeMetaBlock(); err != nil {
				return 0, err
			}
			m.sent = 0
		}
	}
	return total, nil
}

func (m *icyMetaWriter) writeMetaBlock() error {
	title := ""
	if m.title != nil {
		title = m.title()
	}

	if title == m.lastSent {
		_, err := m.w.Write([]byte{0})
		return err
	}
	m.lastSent = title

	meta := "StreamTitle='" + escapeICYMeta(title) + "';"
	blocks := (len(meta) + 15) / 16
	padded := blocks * 16

	buf := make([]byte, 1+padded)
	buf[0] = byte(blocks)
	copy(buf[1:], meta)

	_, err := m.w.Write(buf)
	return err
}

func escapeICYMeta(s string) string {
	return strings.NewReplacer("'", "", ";", "").Replace(s)
}
