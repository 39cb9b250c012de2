package organize

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// ocrEngine recognizes text in PNG/JPEG image bytes.
type ocrEngine interface {
	Recognize(img []byte, lang string) (string, error)
}

// orientationDetector reports how many degrees clockwise a page image
// is rotated from upright (0, 90, 180 or 270). The extractor applies
// the inverse rotation before OCR.
type orientationDetector interface {
	Orientation(img []byte) int
}

// --- tesseract engine ---

type tesseractEngine struct{}

func (tesseractEngine) Recognize(img []byte, lang string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if lang != "" {
		if err := client.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("ocr language %q: %w", lang, err)
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("ocr set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return text, nil
}

// --- sampling orientation detector ---

// samplingDetector OCRs a downscaled copy of the page at each of the
// four rotations and picks the one that reads best. Crude but has no
// dependency on an OSD traineddata being installed.
type samplingDetector struct {
	engine ocrEngine
	lang   string
}

const detectWidth = 600

func (d *samplingDetector) Orientation(imgBytes []byte) int {
	src, err := imaging.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return 0
	}
	small := imaging.Resize(src, detectWidth, 0, imaging.Box)

	best, bestScore := 0, -1
	for _, rot := range []int{0, 90, 180, 270} {
		candidate := rotateCW(small, rot)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, candidate, imaging.PNG); err != nil {
			continue
		}
		text, err := d.engine.Recognize(buf.Bytes(), d.lang)
		if err != nil {
			continue
		}
		score := readabilityScore(text)
		if score > bestScore {
			best, bestScore = rot, score
		}
	}

	// best is the correction we applied; the page orientation is the
	// inverse.
	return (360 - best) % 360
}

// rotateCW rotates img clockwise by deg (imaging rotates CCW).
func rotateCW(img image.Image, deg int) image.Image {
	switch deg {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// correctOrientation rotates the page image so its content reads
// upright, given the detected clockwise orientation.
func correctOrientation(imgBytes []byte, orientation int) []byte {
	if orientation == 0 {
		return imgBytes
	}
	src, err := imaging.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return imgBytes
	}
	fixed := rotateCW(src, (360-orientation)%360)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fixed, imaging.PNG); err != nil {
		return imgBytes
	}
	return buf.Bytes()
}

// readabilityScore counts alphanumeric content; the rotation whose OCR
// output scores highest is assumed upright.
func readabilityScore(text string) int {
	score := 0
	for _, r := range text {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			score++
		}
	}
	return score
}

// loadImagePNG reads any supported raster file and returns PNG bytes.
func loadImagePNG(path string) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, withKind(KindUnsupportedFormat, fmt.Errorf("decode image: %w", err))
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
