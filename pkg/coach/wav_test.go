package coach

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testWAV builds a 16-bit mono PCM file holding dataLen bytes of silence.
func testWAV(sampleRate uint32, dataLen int, declared uint32) []byte {
	byteRate := sampleRate * 2
	b := make([]byte, 0, 44+dataLen)
	b = append(b, "RIFF"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(36+dataLen))
	b = append(b, "WAVE"...)
	b = append(b, "fmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint16(b, 1)
	b = binary.LittleEndian.AppendUint32(b, sampleRate)
	b = binary.LittleEndian.AppendUint32(b, byteRate)
	b = binary.LittleEndian.AppendUint16(b, 2)
	b = binary.LittleEndian.AppendUint16(b, 16)
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, declared)
	return append(b, make([]byte, dataLen)...)
}

func TestWavSeconds(t *testing.T) {
	t.Parallel()

	t.Run("exact", func(t *testing.T) {
		t.Parallel()
		secs, err := wavSeconds(testWAV(24000, 48000*3, 48000*3))
		require.NoError(t, err)
		assert.EqualValues(t, 3, secs)
	})

	t.Run("rounds up", func(t *testing.T) {
		t.Parallel()
		secs, err := wavSeconds(testWAV(24000, 48000*2+10, 48000*2+10))
		require.NoError(t, err)
		assert.EqualValues(t, 3, secs)
	})

	t.Run("streamed placeholder size", func(t *testing.T) {
		t.Parallel()
		secs, err := wavSeconds(testWAV(24000, 48000*4, 0xFFFFFFFF))
		require.NoError(t, err)
		assert.EqualValues(t, 4, secs)
	})

	t.Run("not wav", func(t *testing.T) {
		t.Parallel()
		_, err := wavSeconds([]byte("ID3 mp3 data here"))
		assert.ErrorIs(t, err, ErrInvalidAudio)
	})

	t.Run("no data chunk", func(t *testing.T) {
		t.Parallel()
		_, err := wavSeconds(testWAV(24000, 0, 0)[:36])
		assert.ErrorIs(t, err, ErrInvalidAudio)
	})
}
