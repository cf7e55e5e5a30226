package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3/pkg/media"
)

const (
	frameSamples  = 960 // 20ms at 48kHz
	frameDuration = 20 * time.Millisecond
	tailFrames    = 10
)

var errWriterClosed = errors.New("opus writer closed")

type sampleWriter interface {
	WriteSample(media.Sample) error
}

type frameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// OpusPacedWriter encodes 48kHz PCM mono to Opus and writes the frames to a
// WebRTC track in real time. It is the session's audio player.
type OpusPacedWriter struct {
	enc    frameEncoder
	track  sampleWriter
	frames chan []byte
	stopCh chan struct{}

	mu      sync.Mutex
	pcmBuf  []int16
	stopped bool
}

// NewOpusPacedWriter constructs a paced writer with 20ms frames at 48kHz mono.
func NewOpusPacedWriter(track sampleWriter) (*OpusPacedWriter, error) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := newPacedWriter(enc, track)
	go w.pacer()
	return w, nil
}

func newPacedWriter(enc frameEncoder, track sampleWriter) *OpusPacedWriter {
	return &OpusPacedWriter{
		enc:    enc,
		track:  track,
		frames: make(chan []byte, 512),
		stopCh: make(chan struct{}),
	}
}

// Play queues a whole utterance, including a short silence tail, and blocks
// until the pacer has sent it or ctx is cancelled.
func (w *OpusPacedWriter) Play(ctx context.Context, pcm []byte) error {
	packets := w.encode(pcm, true)
	for _, pkt := range packets {
		select {
		case <-ctx.Done():
			w.Reset()
			return ctx.Err()
		case <-w.stopCh:
			return errWriterClosed
		case w.frames <- pkt:
		}
	}
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Reset()
			return ctx.Err()
		case <-w.stopCh:
			return errWriterClosed
		case <-ticker.C:
			if len(w.frames) == 0 {
				return nil
			}
		}
	}
}

// Stop drops queued audio. A Play in progress returns once its context ends.
func (w *OpusPacedWriter) Stop() { w.Reset() }

// encode converts little-endian PCM to Opus packets. With flush the partial
// trailing frame is zero-padded and a silence tail added to avoid clipping.
func (w *OpusPacedWriter) encode(pcmBytes []byte, flush bool) [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	need := len(pcmBytes) / 2
	for i := 0; i < need; i++ {
		w.pcmBuf = append(w.pcmBuf, int16(uint16(pcmBytes[2*i])|uint16(pcmBytes[2*i+1])<<8))
	}

	var out [][]byte
	opusBuf := make([]byte, 4000)
	emit := func(frame []int16) {
		n, err := w.enc.Encode(frame, opusBuf)
		if err != nil || n <= 0 {
			return
		}
		pkt := make([]byte, n)
		copy(pkt, opusBuf[:n])
		out = append(out, pkt)
	}
	for len(w.pcmBuf) >= frameSamples {
		emit(w.pcmBuf[:frameSamples])
		w.pcmBuf = w.pcmBuf[frameSamples:]
	}
	if flush {
		if len(w.pcmBuf) > 0 {
			pad := make([]int16, frameSamples)
			copy(pad, w.pcmBuf)
			emit(pad)
		}
		w.pcmBuf = nil
		silence := make([]int16, frameSamples)
		for i := 0; i < tailFrames; i++ {
			emit(silence)
		}
	}
	return out
}

// Close stops the pacer.
func (w *OpusPacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *OpusPacedWriter) pacer() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: frameDuration})
			default:
			}
		}
	}
}

// Reset clears queued frames and buffered PCM.
func (w *OpusPacedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = nil
	for {
		select {
		case <-w.frames:
		default:
			return
		}
	}
}

// pcmChunker turns decoded 16kHz samples into fixed-size little-endian
// chunks for the recognizer.
type pcmChunker struct {
	size int
	buf  []byte
}

func newPCMChunker(size int) *pcmChunker {
	return &pcmChunker{size: size, buf: make([]byte, 0, size*2)}
}

func (c *pcmChunker) push(samples []int16, emit func([]byte)) {
	for _, s := range samples {
		c.buf = append(c.buf, byte(uint16(s)), byte(uint16(s)>>8))
	}
	for len(c.buf) >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.buf[:c.size])
		emit(chunk)
		c.buf = append(c.buf[:0], c.buf[c.size:]...)
	}
}
