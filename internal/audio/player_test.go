package audio

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wavBytes builds a minimal 16-bit PCM WAV file with the given parameters.
func wavBytes(sampleRate uint32, channels uint16, seconds int) []byte {
	bytesPerSecond := int(sampleRate) * int(channels) * 2
	dataLen := bytesPerSecond * seconds

	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], sampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(bytesPerSecond))
	binary.LittleEndian.PutUint16(buf[32:34], channels*2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	return buf
}

func TestReadyParsesWAVHeaderAndDerivesDuration(t *testing.T) {
	body := wavBytes(22050, 1, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(body)
	}))
	defer srv.Close()

	p := NewProbePlayer(5 * time.Second)
	p.Load(srv.URL + "/clip.wav")

	require.NoError(t, p.Ready(context.Background()))
	assert.InDelta(t, 3.0, p.Duration().Seconds(), 0.01)
}

func TestReadyDerivesDurationFromChunkedStream(t *testing.T) {
	body := wavBytes(24000, 1, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		// no Content-Length, the response goes out chunked like the
		// narrator's streamed TTS
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		w.Write(body)
	}))
	defer srv.Close()

	p := NewProbePlayer(5 * time.Second)
	p.Load(srv.URL + "/clip.wav")

	require.NoError(t, p.Ready(context.Background()))
	assert.InDelta(t, 2.0, p.Duration().Seconds(), 0.01)
}

func TestReadyAcceptsNonWAVContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 64)) // not RIFF, but the clip exists
	}))
	defer srv.Close()

	p := NewProbePlayer(5 * time.Second)
	p.Load(srv.URL + "/clip.mp3")

	assert.NoError(t, p.Ready(context.Background()))
	assert.Equal(t, time.Duration(0), p.Duration())
}

func TestReadyFailsWithoutSource(t *testing.T) {
	p := NewProbePlayer(time.Second)
	assert.Error(t, p.Ready(context.Background()))
}

func TestPositionTracksPlayPauseClock(t *testing.T) {
	p := NewProbePlayer(time.Second)
	p.Load("http://n/clip.wav")

	require.NoError(t, p.Play())
	time.Sleep(20 * time.Millisecond)
	p.Pause()

	paused := p.Position()
	assert.Greater(t, paused, time.Duration(0))

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, paused, p.Position())
}

func TestLoadResetsClock(t *testing.T) {
	p := NewProbePlayer(time.Second)
	p.Load("http://n/clip1.wav")
	require.NoError(t, p.Play())
	time.Sleep(10 * time.Millisecond)

	p.Load("http://n/clip2.wav")
	assert.Equal(t, time.Duration(0), p.Position())
}
