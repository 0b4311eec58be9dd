package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Player is one media channel. Implementations own the actual output device;
// the orchestrator only drives state. All methods must be safe to call in
// any order.
type Player interface {
	// Load switches the source without starting playback.
	Load(url string)
	// Ready blocks until the source is minimally buffered or ctx ends.
	Ready(ctx context.Context) error
	// Play starts or resumes playback of the loaded source.
	Play() error
	// Pause stops playback without resetting position.
	Pause()
	// SetVolume applies a [0,1] gain to the live channel.
	SetVolume(v float64)
	// SetLoop makes the source restart when it ends.
	SetLoop(loop bool)
	// Unlock executes the environment's autoplay-unlock primitive.
	Unlock() error
	// Position is the elapsed playback time of the current source.
	Position() time.Duration
	// Duration is the total length of the current source, zero if unknown.
	Duration() time.Duration
}

var errNoSource = errors.New("no source loaded")

// ProbePlayer tracks playback state for a renderer that does its own audible
// output, and probes clip readiness by fetching the narrator's streamed WAV
// header (16-bit RIFF). Buffer confirmation over HTTP doubles as a prefetch
// warm-up for the renderer's own request.
type ProbePlayer struct {
	http *http.Client

	mu       sync.Mutex
	url      string
	playing  bool
	loop     bool
	volume   float64
	elapsed  time.Duration
	duration time.Duration
	started  time.Time
}

// NewProbePlayer creates a player probing clip URLs with the given timeout.
func NewProbePlayer(timeout time.Duration) *ProbePlayer {
	return &ProbePlayer{
		http:   &http.Client{Timeout: timeout},
		volume: 1.0,
	}
}

func (p *ProbePlayer) Load(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	p.playing = false
	p.elapsed = 0
	p.duration = 0
}

// Ready fetches the first 44 bytes of the source and parses the RIFF header
// to confirm the clip is being served. Duration comes from the data-chunk
// length in the header; Content-Length is only a fallback since the narrator
// streams chunked responses without one.
func (p *ProbePlayer) Ready(ctx context.Context) error {
	p.mu.Lock()
	url := p.url
	p.mu.Unlock()
	if url == "" {
		return errNoSource
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	header := make([]byte, 44)
	if _, err := io.ReadFull(resp.Body, header); err != nil {
		return fmt.Errorf("short audio header: %w", err)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		// Not WAV; the clip still exists, which is all readiness needs.
		return nil
	}

	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])
	channels := binary.LittleEndian.Uint16(header[22:24])

	var dataBytes int64
	if string(header[36:40]) == "data" {
		if n := binary.LittleEndian.Uint32(header[40:44]); n > 0 && n != 0xFFFFFFFF {
			dataBytes = int64(n)
		}
	}
	if dataBytes == 0 && resp.ContentLength > 44 {
		dataBytes = resp.ContentLength - 44
	}

	if dataBytes > 0 && sampleRate > 0 && bitsPerSample > 0 && channels > 0 {
		bytesPerSecond := int64(sampleRate) * int64(channels) * int64(bitsPerSample) / 8
		if bytesPerSecond > 0 {
			seconds := float64(dataBytes) / float64(bytesPerSecond)
			p.mu.Lock()
			p.duration = time.Duration(seconds * float64(time.Second))
			p.mu.Unlock()
		}
	}
	return nil
}

func (p *ProbePlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.url == "" {
		return errNoSource
	}
	if !p.playing {
		p.playing = true
		p.started = time.Now()
	}
	return nil
}

func (p *ProbePlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.elapsed += time.Since(p.started)
		p.playing = false
	}
}

func (p *ProbePlayer) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

func (p *ProbePlayer) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
}

// Unlock always succeeds: a headless runtime has no gesture requirement of
// its own, the gate exists to model the renderer's.
func (p *ProbePlayer) Unlock() error {
	return nil
}

func (p *ProbePlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.elapsed
	if p.playing {
		pos += time.Since(p.started)
	}
	if p.duration > 0 && pos > p.duration && !p.loop {
		pos = p.duration
	}
	return pos
}

func (p *ProbePlayer) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}
