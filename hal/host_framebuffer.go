//go:build !tinygo

package hal

import "sync/atomic"

// memFramebuffer is an RGB565 frame held in host memory. The panic screen is
// its only writer.
type memFramebuffer struct {
	w, h   int
	pixels []byte

	presents atomic.Uint64
}

func newMemFramebuffer(w, h int) *memFramebuffer {
	return &memFramebuffer{w: w, h: h, pixels: make([]byte, 2*w*h)}
}

func (f *memFramebuffer) Width() int          { return f.w }
func (f *memFramebuffer) Height() int         { return f.h }
func (f *memFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *memFramebuffer) StrideBytes() int    { return 2 * f.w }
func (f *memFramebuffer) Buffer() []byte      { return f.pixels }

// Present counts frames; the host has no panel to push them to.
func (f *memFramebuffer) Present() error {
	f.presents.Add(1)
	return nil
}

// ClearRGB paints the first pixel, then doubles the painted prefix until the
// frame is full.
func (f *memFramebuffer) ClearRGB(r, g, b uint8) {
	if len(f.pixels) == 0 {
		return
	}
	c := RGB565(r, g, b)
	f.pixels[0], f.pixels[1] = byte(c), byte(c>>8)
	for n := 2; n < len(f.pixels); n *= 2 {
		copy(f.pixels[n:], f.pixels[:n])
	}
}
