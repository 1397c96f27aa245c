package host

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dshills/scriptbridge/internal/logging"
)

// FramePoster receives one call per simulated frame. The bridge implements
// it with a mask check before building the event.
type FramePoster interface {
	PostFrame() bool
}

// Addresses the simulation keeps up to date in RAM.
const (
	FrameCounterAddr uint32 = CachedBase + 0x00003000
	RandomSeedAddr   uint32 = CachedBase + 0x00003004
)

// Simulation is a stand-in for the emulated machine: it runs on its own
// goroutine, advances a frame at a fixed rate, updates RAM and posts a frame
// event to scripts without ever waiting for them.
type Simulation struct {
	mem    Memory
	poster FramePoster
	log    *logging.Logger

	frameRate int
	maxFrames uint64

	frames atomic.Uint64
	posted atomic.Uint64
}

// SimulationOption configures a Simulation.
type SimulationOption func(*Simulation)

// WithFrameRate sets frames per second. Values <= 0 are ignored.
func WithFrameRate(fps int) SimulationOption {
	return func(s *Simulation) {
		if fps > 0 {
			s.frameRate = fps
		}
	}
}

// WithMaxFrames stops the simulation after n frames. Zero runs until the
// context ends.
func WithMaxFrames(n uint64) SimulationOption {
	return func(s *Simulation) {
		s.maxFrames = n
	}
}

// WithSimulationLogger sets the logger.
func WithSimulationLogger(l *logging.Logger) SimulationOption {
	return func(s *Simulation) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSimulation creates a simulation over mem posting frames to poster.
func NewSimulation(mem Memory, poster FramePoster, opts ...SimulationOption) *Simulation {
	s := &Simulation{
		mem:       mem,
		poster:    poster,
		log:       logging.NullLogger,
		frameRate: 60,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("simulation")
	return s
}

// Run advances frames until ctx ends or the frame limit is reached.
func (s *Simulation) Run(ctx context.Context) error {
	frameTime := time.Second / time.Duration(s.frameRate)
	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	s.log.Info("running at %d fps", s.frameRate)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := s.Step()
			if s.maxFrames > 0 && n >= s.maxFrames {
				s.log.Info("frame limit %d reached", s.maxFrames)
				return nil
			}
		}
	}
}

// Step advances one frame and returns the new frame count.
func (s *Simulation) Step() uint64 {
	n := s.frames.Add(1)

	s.mem.Write32(uint32(n), FrameCounterAddr)
	seed := s.mem.Read32(RandomSeedAddr)
	s.mem.Write32(seed*1103515245+12345, RandomSeedAddr)

	if s.poster != nil && s.poster.PostFrame() {
		s.posted.Add(1)
	}
	return n
}

// Frames returns the number of frames simulated.
func (s *Simulation) Frames() uint64 {
	return s.frames.Load()
}

// Posted returns the number of frame events the bridge accepted.
func (s *Simulation) Posted() uint64 {
	return s.posted.Load()
}
