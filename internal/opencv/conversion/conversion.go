// Package conversion bridges the decode/encode side (Go image.Image) and the filtering side
// (gocv.Mat). Conversions preserve geometry. 8-bit data round-trips exactly; float Mats are
// saturated and rounded to 8 bits on the way out and 16-bit images keep their high byte on
// the way in.
package conversion

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
)

// ToProcessing converts a decoded image into a Mat: gray -> CV_8UC1, opaque color ->
// CV_8UC3 (BGR), color with transparency -> CV_8UC4 (BGRA, straight alpha).
func ToProcessing(img image.Image) (*safe.Mat, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if err := safe.ValidateDimensions(width, height, "ToProcessing"); err != nil {
		return nil, err
	}

	switch typedImg := img.(type) {
	case *image.Gray:
		return grayImageToMat(typedImg, width, height)
	case *image.Gray16:
		return gray16ImageToMat(typedImg, width, height)
	}

	if isOpaque(img) {
		return opaqueImageToMat(img, width, height)
	}
	return translucentImageToMat(img, width, height)
}

// FromProcessing converts a Mat back into an image: 1 channel -> *image.Gray, 3 channels ->
// *image.RGBA (opaque), 4 channels -> *image.NRGBA.
func FromProcessing(src *safe.Mat) (image.Image, error) {
	if err := safe.ValidateMatForOperation(src, "FromProcessing"); err != nil {
		return nil, err
	}

	narrowed, err := ConvertDepth(src, gocv.MatTypeCV8U)
	if err != nil {
		return nil, fmt.Errorf("depth narrowing failed: %w", err)
	}
	defer narrowed.Close()

	rows := narrowed.Rows()
	cols := narrowed.Cols()
	mat := narrowed.GetMat()
	data := mat.ToBytes()

	switch narrowed.Channels() {
	case 1:
		img := image.NewGray(image.Rect(0, 0, cols, rows))
		for y := 0; y < rows; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+cols], data[y*cols:(y+1)*cols])
		}
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, cols, rows))
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				s := (y*cols + x) * 3
				d := y*img.Stride + x*4
				img.Pix[d+0] = data[s+2]
				img.Pix[d+1] = data[s+1]
				img.Pix[d+2] = data[s+0]
				img.Pix[d+3] = 255
			}
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(image.Rect(0, 0, cols, rows))
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				s := (y*cols + x) * 4
				d := y*img.Stride + x*4
				img.Pix[d+0] = data[s+2]
				img.Pix[d+1] = data[s+1]
				img.Pix[d+2] = data[s+0]
				img.Pix[d+3] = data[s+3]
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("unsupported channel count: %d", narrowed.Channels())
	}
}

func grayImageToMat(img *image.Gray, width, height int) (*safe.Mat, error) {
	buf := make([]byte, width*height)
	for y := 0; y < height; y++ {
		start := y * img.Stride
		copy(buf[y*width:(y+1)*width], img.Pix[start:start+width])
	}
	return matFromBytes(height, width, gocv.MatTypeCV8UC1, buf, "bridge_gray")
}

func gray16ImageToMat(img *image.Gray16, width, height int) (*safe.Mat, error) {
	buf := make([]byte, width*height)
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			buf[y*width+x] = row[x*2] // big-endian high byte
		}
	}
	return matFromBytes(height, width, gocv.MatTypeCV8UC1, buf, "bridge_gray16")
}

func opaqueImageToMat(img image.Image, width, height int) (*safe.Mat, error) {
	buf := make([]byte, width*height*3)
	bounds := img.Bounds()

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				s := y*rgba.Stride + x*4
				d := (y*width + x) * 3
				buf[d+0] = rgba.Pix[s+2]
				buf[d+1] = rgba.Pix[s+1]
				buf[d+2] = rgba.Pix[s+0]
			}
		}
		return matFromBytes(height, width, gocv.MatTypeCV8UC3, buf, "bridge_bgr")
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			d := (y*width + x) * 3
			buf[d+0] = uint8(b >> 8)
			buf[d+1] = uint8(g >> 8)
			buf[d+2] = uint8(r >> 8)
		}
	}
	return matFromBytes(height, width, gocv.MatTypeCV8UC3, buf, "bridge_bgr")
}

func translucentImageToMat(img image.Image, width, height int) (*safe.Mat, error) {
	buf := make([]byte, width*height*4)
	bounds := img.Bounds()

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.NRGBA)
			d := (y*width + x) * 4
			buf[d+0] = c.B
			buf[d+1] = c.G
			buf[d+2] = c.R
			buf[d+3] = c.A
		}
	}
	return matFromBytes(height, width, gocv.MatTypeCV8UC4, buf, "bridge_bgra")
}

// matFromBytes copies buf into a Mat that owns its memory; gocv's byte constructor only
// borrows the Go slice.
func matFromBytes(rows, cols int, mt gocv.MatType, buf []byte, tag string) (*safe.Mat, error) {
	borrowed, err := gocv.NewMatFromBytes(rows, cols, mt, buf)
	if err != nil {
		return nil, fmt.Errorf("Mat creation from bytes failed: %w", err)
	}
	defer borrowed.Close()

	return safe.NewMatFromMat(borrowed, tag)
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}
