package coach

import (
	"encoding/binary"
	"fmt"
	"math"
)

// wavSeconds returns the playback length of WAV audio rounded up to whole
// seconds. Streamed WAV files may carry a placeholder data size; the bytes
// actually present are used instead.
func wavSeconds(audio []byte) (int64, error) {
	if len(audio) < 12 || string(audio[0:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidAudio)
	}

	var byteRate uint32
	pos := 12
	for pos+8 <= len(audio) {
		id := string(audio[pos : pos+4])
		size := binary.LittleEndian.Uint32(audio[pos+4 : pos+8])
		body := pos + 8

		switch id {
		case "fmt ":
			if body+12 > len(audio) {
				return 0, fmt.Errorf("%w: truncated fmt chunk", ErrInvalidAudio)
			}
			byteRate = binary.LittleEndian.Uint32(audio[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, fmt.Errorf("%w: data before fmt chunk", ErrInvalidAudio)
			}
			avail := uint64(len(audio) - body)
			n := uint64(size)
			if n == 0 || n > avail {
				n = avail
			}
			return int64(math.Ceil(float64(n) / float64(byteRate))), nil
		}

		next := uint64(body) + uint64(size) + uint64(size&1)
		if next > uint64(len(audio)) {
			break
		}
		pos = int(next)
	}
	return 0, fmt.Errorf("%w: no data chunk", ErrInvalidAudio)
}
