package images

// ImageFormat represents supported image formats
type ImageFormat string

const (
	// FormatRGB888 is packed 8-bit R, G, B.
	FormatRGB888 ImageFormat = "rgb888"
	// FormatBGR888 is packed 8-bit B, G, R, the OpenCV frame layout.
	FormatBGR888 ImageFormat = "bgr888"
	// FormatRGB565 is 16-bit little endian 5-6-5 RGB.
	FormatRGB565 ImageFormat = "rgb565"
	// FormatGray8 is one 8-bit luma byte per pixel.
	FormatGray8 ImageFormat = "gray8"
	// FormatYUV422 is packed YUYV, two pixels per four bytes.
	FormatYUV422 ImageFormat = "yuv422"
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
)

// Encoded reports whether the format is a compressed container that must be decoded.
func (f ImageFormat) Encoded() bool {
	return f == FormatJPEG || f == FormatPNG || f == FormatWebP
}

// BytesPerPixel returns the raw pixel width, or 0 for encoded and unknown formats.
func (f ImageFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB888, FormatBGR888:
		return 3
	case FormatRGB565, FormatYUV422:
		return 2
	case FormatGray8:
		return 1
	}
	return 0
}

// FormatFromExt maps a file extension to an encoded format.
func FormatFromExt(ext string) (ImageFormat, bool) {
	switch ext {
	case ".jpg", ".jpeg":
		return FormatJPEG, true
	case ".png":
		return FormatPNG, true
	case ".webp":
		return FormatWebP, true
	}
	return "", false
}
