package hal

// RGB565 packs an 8-bit-per-channel color into PixelFormatRGB565.
func RGB565(r, g, b uint8) uint16 {
	rr := uint16(r>>3) & 0x1F
	gg := uint16(g>>2) & 0x3F
	bb := uint16(b>>3) & 0x1F
	return (rr << 11) | (gg << 5) | bb
}

// PixelRGB565 reads the pixel at (x, y) from an RGB565 framebuffer. It
// returns false when the point is outside the buffer.
func PixelRGB565(fb Framebuffer, x, y int) (uint16, bool) {
	if fb == nil || fb.Format() != PixelFormatRGB565 {
		return 0, false
	}
	if x < 0 || x >= fb.Width() || y < 0 || y >= fb.Height() {
		return 0, false
	}
	buf := fb.Buffer()
	off := y*fb.StrideBytes() + x*2
	if off+1 >= len(buf) {
		return 0, false
	}
	return uint16(buf[off]) | uint16(buf[off+1])<<8, true
}

// SetPixelRGB565 writes pixel at (x, y) of an RGB565 framebuffer. It reports
// false when the point is outside the buffer.
func SetPixelRGB565(fb Framebuffer, x, y int, pixel uint16) bool {
	if fb == nil || fb.Format() != PixelFormatRGB565 {
		return false
	}
	if x < 0 || x >= fb.Width() || y < 0 || y >= fb.Height() {
		return false
	}
	buf := fb.Buffer()
	off := y*fb.StrideBytes() + x*2
	if off+1 >= len(buf) {
		return false
	}
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
	return true
}
