package ui

import (
	"encoding/binary"
	"time"

	"github.com/kageyama-retro/dmgcore/internal/emu"
)

// applyPlayerBufferSize sets the audio player's internal buffer to a small
// size for low latency: ~20ms in low-latency mode, ~40ms otherwise.
func (a *App) applyPlayerBufferSize() {
	if a.audioPlayer == nil {
		return
	}
	bufMs := 40
	if a.cfg.AudioLowLatency {
		bufMs = 20
	}
	a.audioPlayer.SetBufferSize(time.Duration(bufMs) * time.Millisecond)
}

// apuStream implements io.Reader by pulling PCM samples from the emulated
// APU and converting them to 16-bit little-endian stereo frames.
type apuStream struct {
	sys        *emu.System
	mono       bool
	muted      *bool
	lowLatency bool

	underruns int
}

func (s *apuStream) Read(p []byte) (int, error) {
	if len(p) < 4 || s == nil || s.sys == nil {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}
	if s.muted != nil && *s.muted {
		for i := range p {
			p[i] = 0
		}
		time.Sleep(5 * time.Millisecond)
		return len(p), nil
	}

	maxReq := len(p) / 4
	capFrames := 2048
	if s.lowLatency {
		capFrames = 1024
	}
	if maxReq > capFrames {
		maxReq = capFrames
	}

	want := maxReq
	if buf := s.sys.AudioAvailable(); buf > 0 && buf < want {
		want = buf
	} else if buf == 0 {
		waitDur := 15 * time.Millisecond
		if s.lowLatency {
			waitDur = 8 * time.Millisecond
		}
		deadline := time.Now().Add(waitDur)
		for time.Now().Before(deadline) {
			if b := s.sys.AudioAvailable(); b > 0 {
				want = b
				if want > maxReq {
					want = maxReq
				}
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	frames := s.sys.PullAudio(want)
	if len(frames) == 0 {
		s.underruns++
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	i := 0
	for j := 0; j+1 < len(frames) && i+3 < len(p); j += 2 {
		l, r := frames[j], frames[j+1]
		if s.mono {
			m := int16((int32(l) + int32(r)) / 2)
			l, r = m, m
		}
		binary.LittleEndian.PutUint16(p[i:], uint16(l))
		binary.LittleEndian.PutUint16(p[i+2:], uint16(r))
		i += 4
	}
	for ; i < len(p); i++ {
		p[i] = 0
	}
	return len(p), nil
}
