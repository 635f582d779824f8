package media

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/dganger475/dopp-sub002/models"
)

// Fixed weights for the combined quality score. Brightness is measured in
// 0..255 luma units and scaled down so the three terms share a range.
const (
	weightSharpness  = 0.5
	weightContrast   = 0.3
	weightBrightness = 0.2
)

// Flag thresholds, checked in order; first match wins.
const (
	blurrySharpnessThreshold = 5.0
	lowContrastThreshold     = 15.0
	darkBrightnessThreshold  = 40.0
)

// Assessment holds the three independent image measurements, the combined
// score and the resulting quality flag.
type Assessment struct {
	Brightness float64 `json:"brightness"` // mean luma, 0..255
	Contrast   float64 `json:"contrast"`   // standard deviation of luma
	Sharpness  float64 `json:"sharpness"`  // variance of Laplacian response
	Score      float64 `json:"score"`
	Flag       string  `json:"flag"`
}

// AssessImage computes a quality assessment over a decoded image. Higher
// scores are better; the flag gates index membership (blurry faces are
// excluded from the index regardless of embedding presence).
func AssessImage(img image.Image) Assessment {
	luma := toLuma(img)

	brightness := meanOf(luma.pixels)
	contrast := stddevOf(luma.pixels, brightness)
	sharpness := laplacianVariance(luma)

	score := weightSharpness*sharpness + weightContrast*contrast + weightBrightness*(brightness/255.0)

	flag := models.QualityGood
	switch {
	case sharpness < blurrySharpnessThreshold:
		flag = models.QualityBlurry
	case contrast < lowContrastThreshold:
		flag = models.QualityLowContrast
	case brightness < darkBrightnessThreshold:
		flag = models.QualityDark
	}

	return Assessment{
		Brightness: brightness,
		Contrast:   contrast,
		Sharpness:  sharpness,
		Score:      score,
		Flag:       flag,
	}
}

// AssessImageFile decodes and assesses an image asset on disk.
func AssessImageFile(path string) (Assessment, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return AssessImage(img), nil
}

// lumaPlane is a single-channel float view of an image.
type lumaPlane struct {
	width  int
	height int
	pixels []float64
}

func (l lumaPlane) at(x, y int) float64 {
	return l.pixels[y*l.width+x]
}

// toLuma converts an image to a Rec.601 luma plane in 0..255 units.
func toLuma(img image.Image) lumaPlane {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]float64, w*h)

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			pixels[i] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			i++
		}
	}
	return lumaPlane{width: w, height: h, pixels: pixels}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// laplacianVariance convolves the luma plane with a 3x3 Laplacian kernel
// and returns the variance of the response over interior pixels. Edge
// pixels are skipped; images smaller than 3x3 measure as zero sharpness.
func laplacianVariance(l lumaPlane) float64 {
	if l.width < 3 || l.height < 3 {
		return 0
	}

	responses := make([]float64, 0, (l.width-2)*(l.height-2))
	for y := 1; y < l.height-1; y++ {
		for x := 1; x < l.width-1; x++ {
			r := l.at(x, y-1) + l.at(x-1, y) + l.at(x+1, y) + l.at(x, y+1) - 4*l.at(x, y)
			responses = append(responses, r)
		}
	}

	mean := meanOf(responses)
	var sum float64
	for _, r := range responses {
		d := r - mean
		sum += d * d
	}
	return sum / float64(len(responses))
}
