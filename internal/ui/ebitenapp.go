// Package ui implements a minimal windowed front end: a fixed-size display
// loop, keyboard input capture mapped to joypad buttons, and an ebiten
// audio player pulling stereo frames off the emulated APU. The PPU's
// pixel-fetch pipeline is out of scope for this core, so Draw has no real
// framebuffer to blit; it renders a placeholder screen and a small debug
// overlay instead.
package ui

import (
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/kageyama-retro/dmgcore/internal/emu"
)

const (
	screenW = 160
	screenH = 144
)

// App is a minimal ebiten.Game driving one emu.System.
type App struct {
	cfg Config
	sys *emu.System

	paused bool
	fast   bool

	audioCtx    *audio.Context
	audioPlayer *audio.Player
	audioSrc    *apuStream
	audioMuted  bool

	lastTime time.Time
	frameAcc float64
}

// NewApp wires a display+audio+input loop around an already-loaded System.
func NewApp(cfg Config, sys *emu.System) *App {
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(screenW*cfg.Scale, screenH*cfg.Scale)
	return &App{
		cfg:      cfg,
		sys:      sys,
		audioCtx: audio.NewContext(48000),
		lastTime: time.Now(),
	}
}

// Run hands control to ebiten until the window closes.
func (a *App) Run() error { return ebiten.RunGame(a) }

func (a *App) Update() error {
	if a.audioPlayer == nil {
		a.audioMuted = true
		a.audioSrc = &apuStream{sys: a.sys, mono: !a.cfg.AudioStereo, muted: &a.audioMuted, lowLatency: a.cfg.AudioLowLatency}
		if p, err := a.audioCtx.NewPlayer(a.audioSrc); err == nil {
			a.audioPlayer = p
			a.applyPlayerBufferSize()
			a.audioPlayer.Play()
		}
	}
	a.audioMuted = false

	var btn emu.Buttons
	if ebiten.IsKeyPressed(ebiten.KeyArrowRight) {
		btn.Right = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowLeft) {
		btn.Left = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowUp) {
		btn.Up = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyArrowDown) {
		btn.Down = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyZ) {
		btn.A = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyX) {
		btn.B = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyEnter) {
		btn.Start = true
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		btn.Select = true
	}
	a.sys.SetButtons(btn)

	if ebiten.IsKeyPressed(ebiten.KeyP) {
		a.paused = !a.paused
	}
	a.fast = ebiten.IsKeyPressed(ebiten.KeyTab)

	if a.paused {
		return nil
	}

	// Pace Step calls against wall-clock time rather than ebiten's own tick
	// count, so fast-forward (uncapped) and normal speed both fall out of
	// the same loop.
	now := time.Now()
	dt := now.Sub(a.lastTime).Seconds()
	a.lastTime = now
	targetFPS := 60.0
	if a.fast {
		dt *= 4
	}
	a.frameAcc += dt * targetFPS
	for a.frameAcc >= 1 {
		if err := a.sys.Run(1); err != nil {
			return err
		}
		a.frameAcc--
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 0x30, G: 0x30, B: 0x38, A: 0xFF})
	ebitenutil.DebugPrint(screen, fmt.Sprintf("frame=%d  [no pixel output: PPU pixel-fetch out of scope]", a.sys.FrameCount()))
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenW, screenH
}
