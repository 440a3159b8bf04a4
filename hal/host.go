//go:build !tinygo

package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// HostConfig describes a simulated machine.
type HostConfig struct {
	// Output receives log lines. Defaults to os.Stdout.
	Output io.Writer

	// Hz is the timer frequency of the tick stream. Defaults to 100.
	Hz int

	Width, Height int
}

type hostHAL struct {
	logger *hostLogger
	fb     *memFramebuffer
	t      *hostTime
}

// NewHost returns a host HAL for cfg.
func NewHost(cfg HostConfig) HAL {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 100
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 320, 320
	}
	return &hostHAL{
		logger: &hostLogger{w: cfg.Output},
		fb:     newMemFramebuffer(cfg.Width, cfg.Height),
		t:      newHostTime(time.Second / time.Duration(cfg.Hz)),
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Time() Time       { return h.t }

type hostDisplay struct {
	fb *memFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
