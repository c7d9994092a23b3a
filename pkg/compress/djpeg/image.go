package djpeg

import (
	"fmt"
	"image"
	"image/color"
)

var (
	grayModel = color.GrayModel
	cmykModel = color.CMYKModel
	rgbaModel = color.RGBAModel
)

// Image wraps the samples in the matching image type. Gray and RGBA buffers are shared;
// RGB is widened to RGBA and inverted CMYK is flipped into a copy.
func (px *Pixels) Image() (image.Image, error) {
	r := image.Rect(0, 0, px.Width, px.Height)
	if px.Colormap != nil {
		return px.paletted(r)
	}
	switch {
	case px.ColorSpace == ColorGray && px.Components == 1:
		return &image.Gray{Pix: px.Pix, Stride: px.Stride, Rect: r}, nil
	case px.ColorSpace == ColorRGBA && px.Components == 4:
		return &image.RGBA{Pix: px.Pix, Stride: px.Stride, Rect: r}, nil
	case px.ColorSpace == ColorRGB && px.Components == 3:
		img := image.NewRGBA(r)
		for y := 0; y < px.Height; y++ {
			src := px.Pix[y*px.Stride:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < px.Width; x++ {
				dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = src[3*x], src[3*x+1], src[3*x+2], 0xFF
			}
		}
		return img, nil
	case px.ColorSpace == ColorCMYK && px.Components == 4:
		if !px.AdobeInverted {
			return &image.CMYK{Pix: px.Pix, Stride: px.Stride, Rect: r}, nil
		}
		img := image.NewCMYK(r)
		for y := 0; y < px.Height; y++ {
			src := px.Pix[y*px.Stride : y*px.Stride+4*px.Width]
			dst := img.Pix[y*img.Stride:]
			for i, v := range src {
				dst[i] = 255 - v
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("%w: no image type for %d-component %s pixels",
		ErrUnsupported, px.Components, px.ColorSpace)
}

func (px *Pixels) paletted(r image.Rectangle) (image.Image, error) {
	cm := px.Colormap
	n := len(cm[0])
	pal := make(color.Palette, n)
	for i := range pal {
		switch len(cm) {
		case 1:
			pal[i] = color.Gray{Y: cm[0][i]}
		case 3:
			pal[i] = color.RGBA{R: cm[0][i], G: cm[1][i], B: cm[2][i], A: 0xFF}
		default:
			return nil, fmt.Errorf("%w: %d-component colormap", ErrUnsupported, len(cm))
		}
	}
	return &image.Paletted{Pix: px.Pix, Stride: px.Stride, Rect: r, Palette: pal}, nil
}
