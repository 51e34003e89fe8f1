package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
)

const (
	defaultMaxWidth     = 1600
	defaultMaxSizeBytes = 2 * 1024 * 1024
	defaultQuality      = 85
	minWidth            = 480
)

// Prepared — снимок, готовый к отправке на распознавание.
type Prepared struct {
	Data     []byte
	Width    int
	Height   int
	MimeType string
}

// DataURL кодирует снимок в data URL для моделей с визуальным входом.
func (p Prepared) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", p.MimeType, base64.StdEncoding.EncodeToString(p.Data))
}

// Processor уменьшает снимок до maxWidth и ужимает JPEG до maxSizeByte.
type Processor struct {
	maxWidth    int
	maxSizeByte int
	quality     int
}

func NewProcessor(maxWidth int) *Processor {
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	return &Processor{
		maxWidth:    maxWidth,
		maxSizeByte: defaultMaxSizeBytes,
		quality:     defaultQuality,
	}
}

// Prepare читает снимок и перекодирует его в JPEG в памяти.
func (p *Processor) Prepare(path string) (Prepared, error) {
	file, err := os.Open(path)
	if err != nil {
		return Prepared{}, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return Prepared{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return p.Encode(img)
}

// Encode масштабирует и кодирует изображение.
func (p *Processor) Encode(img image.Image) (Prepared, error) {
	b := img.Bounds()
	origWidth, origHeight := b.Dx(), b.Dy()
	if origWidth == 0 || origHeight == 0 {
		return Prepared{}, fmt.Errorf("invalid image size: %dx%d", origWidth, origHeight)
	}

	width := min(origWidth, p.maxWidth)
	height := max(1, origHeight*width/origWidth)
	for {
		var src image.Image = img
		if width != origWidth {
			src = ResizeNearest(img, width, height)
		}
		encoded, err := encodeJPEG(src, p.quality)
		if err != nil {
			return Prepared{}, err
		}
		if len(encoded) <= p.maxSizeByte {
			return Prepared{Data: encoded, Width: width, Height: height, MimeType: "image/jpeg"}, nil
		}
		if width <= minWidth {
			return Prepared{}, fmt.Errorf("image exceeds max size %d bytes even after downscale", p.maxSizeByte)
		}
		width = max(minWidth, int(float64(width)*0.9))
		height = max(1, origHeight*width/origWidth)
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ResizeNearest масштабирует изображение методом ближайшего соседа.
func ResizeNearest(src image.Image, width int, height int) *image.RGBA {
	if width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()
	if srcWidth == 0 || srcHeight == 0 {
		return image.NewRGBA(image.Rect(0, 0, width, height))
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		srcY := srcBounds.Min.Y + y*srcHeight/height
		for x := range width {
			srcX := srcBounds.Min.X + x*srcWidth/width
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	return dst
}
