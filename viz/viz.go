// Package viz renders batches of grayscale images into tiled PNG grids,
// used to eyeball reconstructions and prior samples during training.
package viz

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// Grid tiles n grayscale images, each imgRows x imgCols with pixel
// values in [0,1], into a grid with tileCols images per row. images is
// flat, one image after another.
func Grid(images []float32, imgRows, imgCols, tileCols int) (*image.Gray, error) {
	if imgRows <= 0 || imgCols <= 0 || tileCols <= 0 {
		return nil, fmt.Errorf("invalid grid geometry %dx%d cols=%d", imgRows, imgCols, tileCols)
	}
	pixels := imgRows * imgCols
	if len(images)%pixels != 0 {
		return nil, fmt.Errorf("image data length %d not a multiple of %d", len(images), pixels)
	}

	n := len(images) / pixels
	tileRows := (n + tileCols - 1) / tileCols

	out := image.NewGray(image.Rect(0, 0, tileCols*imgCols, tileRows*imgRows))
	for i := 0; i < n; i++ {
		img := images[i*pixels : (i+1)*pixels]
		originX := (i % tileCols) * imgCols
		originY := (i / tileCols) * imgRows

		for y := 0; y < imgRows; y++ {
			for x := 0; x < imgCols; x++ {
				v := img[y*imgCols+x]
				if v < 0 {
					v = 0
				} else if v > 1 {
					v = 1
				}
				out.SetGray(originX+x, originY+y, color.Gray{Y: uint8(v*255 + 0.5)})
			}
		}
	}
	return out, nil
}

// SavePNG writes img to path, creating parent directories as needed.
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
