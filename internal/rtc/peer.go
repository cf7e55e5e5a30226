package rtc

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// pcm16kChunkBytes is 100ms of 16kHz mono PCM16.
const pcm16kChunkBytes = 3200

// Peer is one WebRTC connection to a candidate's browser: microphone audio
// in, prompt audio out.
type Peer struct {
	pc     *webrtc.PeerConnection
	writer *OpusPacedWriter
	log    *zap.Logger

	onAudio func([]byte)

	closeOnce sync.Once
	done      chan struct{}
}

// NewPeer prepares a peer connection with default codecs and interceptors
// and an outgoing Opus track. onAudio receives decoded 16kHz PCM16LE chunks.
func NewPeer(iceServersJSON string, onAudio func([]byte), log *zap.Logger) (*Peer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: parseICEServers(iceServersJSON)})
	if err != nil {
		return nil, err
	}
	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 1},
		"interviewer-audio", "interviewer",
	)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return nil, err
	}
	writer, err := NewOpusPacedWriter(outTrack)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	p := &Peer{pc: pc, writer: writer, log: log, onAudio: onAudio, done: make(chan struct{})}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("rtc: peer connection state", zap.String("state", state.String()))
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			p.Close()
		}
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		p.log.Info("rtc: remote audio track", zap.String("codec", remote.Codec().MimeType))
		go p.readMic(remote)
	})
	return p, nil
}

// OnICECandidate trickles local candidates; done is set once gathering ends.
func (p *Peer) OnICECandidate(fn func(c webrtc.ICECandidateInit, done bool)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(webrtc.ICECandidateInit{}, true)
			return
		}
		fn(c.ToJSON(), false)
	})
}

// Answer applies a remote offer and returns the local answer SDP.
func (p *Peer) Answer(offerSDP string) (string, error) {
	if offerSDP == "" {
		return "", errors.New("invalid offer")
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("no local description")
	}
	return local.SDP, nil
}

func (p *Peer) AddCandidate(c webrtc.ICECandidateInit) error {
	if c.Candidate == "" {
		return nil
	}
	return p.pc.AddICECandidate(c)
}

// Player is the paced writer for prompt audio.
func (p *Peer) Player() *OpusPacedWriter { return p.writer }

// Done is closed when the peer is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Close releases the connection and its audio pipeline.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.writer.Close()
		if err := p.pc.Close(); err != nil {
			p.log.Debug("rtc: close peer", zap.Error(err))
		}
	})
}

func (p *Peer) readMic(remote *webrtc.TrackRemote) {
	dec, err := opus.NewDecoder(16000, 1)
	if err != nil {
		p.log.Error("rtc: opus decoder", zap.Error(err))
		return
	}
	chunker := newPCMChunker(pcm16kChunkBytes)
	samples := make([]int16, 1920)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			p.log.Debug("rtc: rtp read ended", zap.Error(err))
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, samples)
		if err != nil {
			p.log.Debug("rtc: opus decode", zap.Error(err))
			continue
		}
		if p.onAudio != nil {
			chunker.push(samples[:n], p.onAudio)
		}
	}
}

func parseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}
