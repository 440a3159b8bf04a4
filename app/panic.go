package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"kestrel/hal"
	"kestrel/internal/klog"
	"kestrel/kernel"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

// installPanicHandler makes a kernel panic log its report line by line and
// paint it onto the display. The kernel halts the faulting thread afterwards.
func installPanicHandler(k *kernel.Kernel, h hal.HAL, log *klog.Logger) {
	k.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := panicReport(info)

		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		if disp := h.Display(); disp != nil {
			if fb := disp.Framebuffer(); fb != nil {
				if err := renderPanic(fb, lines); err != nil {
					log.Err().Err(err).Log("panic screen")
				}
			}
		}
	})
}

func panicReport(info kernel.PanicInfo) []string {
	lines := []string{
		"Kestrel Panic:",
		fmt.Sprintf("thread: %s (%d)", info.Thread, info.TID),
		fmt.Sprintf("panic: %s", info.Message),
	}
	if info.Dump != "" {
		lines = append(lines, "descriptor:")
		lines = appendNonEmpty(lines, info.Dump)
	}
	if len(info.Stack) > 0 {
		lines = append(lines, "stack:")
		lines = appendNonEmpty(lines, string(info.Stack))
	} else {
		lines = append(lines, "stack: unavailable")
	}
	return lines
}

func appendNonEmpty(lines []string, text string) []string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

var panicFont = &tinyfont.TomThumb

// renderPanic draws lines black on white, wrapping at the right edge and
// stopping at the bottom.
func renderPanic(fb hal.Framebuffer, lines []string) error {
	fb.ClearRGB(255, 255, 255)

	fontHeight := int16(panicFont.GetYAdvance())
	_, outboxWidth := tinyfont.LineWidth(panicFont, "0")
	fontWidth := int16(outboxWidth)
	if fontWidth <= 0 || fontHeight <= 0 {
		return fb.Present()
	}
	fontOffset := fontHeight - 1

	d := panicDisplay{fb: fb}
	fg := color.RGBA{R: 0, G: 0, B: 0, A: 255}

	maxW, maxH := fb.Width(), fb.Height()
	cols := int16(maxW) / fontWidth
	if cols <= 0 {
		cols = 1
	}

	y := int16(0)
	for _, line := range lines {
		for len(line) > 0 {
			if y+fontHeight > int16(maxH) {
				return fb.Present()
			}
			chunk, rest := takeRunes(line, cols)
			drawTextLine(d, fontWidth, fontOffset, 0, y, chunk, fg)
			y += fontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	return fb.Present()
}

func drawTextLine(d panicDisplay, fontWidth, fontOffset, x0, y0 int16, s string, fg color.RGBA) {
	x := x0
	for _, r := range s {
		tinyfont.DrawChar(d, panicFont, x, y0+fontOffset, r, fg)
		x += fontWidth
	}
}

// panicDisplay adapts a framebuffer to the Displayer tinyfont draws on.
type panicDisplay struct {
	fb hal.Framebuffer
}

var _ drivers.Displayer = panicDisplay{}

func (d panicDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d panicDisplay) SetPixel(x, y int16, c color.RGBA) {
	hal.SetPixelRGB565(d.fb, int(x), int(y), hal.RGB565(c.R, c.G, c.B))
}

func (d panicDisplay) Display() error { return nil }

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		count++
	}
	return s[:i], s[i:]
}
