package analyzer

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ContrastDetector implements edge-based region detection using Sobel operator
type ContrastDetector struct {
	MinBlockArea  int     // Minimum area in analysis pixels²
	EdgeThreshold float64 // Gradient magnitude threshold
	// MaxSide bounds the analysis resolution. Larger images are scaled down
	// first.
	MaxSide int
}

// NewContrastDetector creates a new contrast-based detector with default settings
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  64,
		EdgeThreshold: 30.0,
		MaxSide:       256,
	}
}

// Detect finds regions of dense edges.
func (d *ContrastDetector) Detect(img image.Image) []Block {
	gray := d.toGrayscale(img)
	b := gray.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil
	}

	edges := sobelEdgeDetection(gray, d.EdgeThreshold)
	dilated := dilate(edges, 5, 2)

	w, h := float64(b.Dx()), float64(b.Dy())
	var blocks []Block
	for _, r := range findContours(dilated) {
		if r.Dx()*r.Dy() < d.MinBlockArea {
			continue
		}
		blocks = append(blocks, Block{
			Left:   float64(r.Min.X-b.Min.X) / w,
			Top:    float64(r.Min.Y-b.Min.Y) / h,
			Right:  float64(r.Max.X-b.Min.X) / w,
			Bottom: float64(r.Max.Y-b.Min.Y) / h,
		})
	}
	return blocks
}

// toGrayscale converts img to grayscale at no more than MaxSide pixels on
// its longer side.
func (d *ContrastDetector) toGrayscale(img image.Image) *image.Gray {
	src := img.Bounds()
	w, h := src.Dx(), src.Dy()
	if longest := max(w, h); d.MaxSide > 0 && longest > d.MaxSide {
		scale := float64(d.MaxSide) / float64(longest)
		w = max(1, int(math.Round(float64(w)*scale)))
		h = max(1, int(math.Round(float64(h)*scale)))
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	if w == src.Dx() && h == src.Dy() {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				gray.Set(x, y, color.GrayModel.Convert(img.At(src.Min.X+x, src.Min.Y+y)))
			}
		}
		return gray
	}
	xdraw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, src, xdraw.Src, nil)
	return gray
}

var (
	sobelX = [3][3]int{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY = [3][3]int{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
)

// sobelEdgeDetection marks pixels whose gradient magnitude exceeds threshold.
func sobelEdgeDetection(gray *image.Gray, threshold float64) *image.Gray {
	bounds := gray.Bounds()
	edges := image.NewGray(bounds)

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y++ {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x++ {
			var sumX, sumY float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					pixel := float64(gray.GrayAt(x+kx, y+ky).Y)
					sumX += pixel * float64(sobelX[ky+1][kx+1])
					sumY += pixel * float64(sobelY[ky+1][kx+1])
				}
			}
			if math.Hypot(sumX, sumY) > threshold {
				edges.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return edges
}

// dilate grows marked pixels so that nearby edges merge into one region.
func dilate(img *image.Gray, kernelSize, iterations int) *image.Gray {
	bounds := img.Bounds()
	result := image.NewGray(bounds)
	copy(result.Pix, img.Pix)

	half := kernelSize / 2
	for iter := 0; iter < iterations; iter++ {
		temp := image.NewGray(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				var maxVal uint8
				for ky := max(bounds.Min.Y, y-half); ky <= min(bounds.Max.Y-1, y+half); ky++ {
					for kx := max(bounds.Min.X, x-half); kx <= min(bounds.Max.X-1, x+half); kx++ {
						if v := result.GrayAt(kx, ky).Y; v > maxVal {
							maxVal = v
						}
					}
				}
				temp.SetGray(x, y, color.Gray{Y: maxVal})
			}
		}
		result = temp
	}
	return result
}

// findContours returns the bounding rectangles of connected marked regions.
func findContours(img *image.Gray) []image.Rectangle {
	bounds := img.Bounds()
	visited := make([]bool, bounds.Dx()*bounds.Dy())

	var contours []image.Rectangle
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := (y-bounds.Min.Y)*bounds.Dx() + (x - bounds.Min.X)
			if img.GrayAt(x, y).Y > 128 && !visited[i] {
				contours = append(contours, floodFill(img, visited, x, y))
			}
		}
	}
	return contours
}

// floodFill marks one 4-connected region and returns its bounds.
func floodFill(img *image.Gray, visited []bool, startX, startY int) image.Rectangle {
	bounds := img.Bounds()
	r := image.Rect(startX, startY, startX+1, startY+1)

	stack := []image.Point{{X: startX, Y: startY}}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !p.In(bounds) {
			continue
		}
		i := (p.Y-bounds.Min.Y)*bounds.Dx() + (p.X - bounds.Min.X)
		if visited[i] || img.GrayAt(p.X, p.Y).Y <= 128 {
			continue
		}
		visited[i] = true
		r = r.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		stack = append(stack,
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y + 1},
			image.Point{X: p.X, Y: p.Y - 1},
		)
	}
	return r
}
