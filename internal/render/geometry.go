package render

import (
	"fmt"
	"math"

	"clipper/internal/services"
)

// Geometry describes the vertical crop applied to the source before
// scaling. The crop is full source height with a 9:16 width.
type Geometry struct {
	SrcWidth  int
	SrcHeight int
	CropWidth int
	CropX     int
}

// ComputeGeometry maps a decision crop center from proxy coordinates into a
// clamped source-space crop window. cropX comes from the decision document
// and is scaled by cropScale (proxy frames are downscaled from the source
// by that factor).
func ComputeGeometry(srcWidth, srcHeight int, cropX, cropScale float64) (Geometry, error) {
	cropWidth := int(math.Round(float64(srcHeight) * 9.0 / 16.0))
	if cropWidth <= 0 || cropWidth > srcWidth {
		return Geometry{}, services.Wrap(services.ErrValidation, "render", "geometry",
			fmt.Sprintf("crop width %d invalid for source %dx%d", cropWidth, srcWidth, srcHeight), nil)
	}

	x := int(math.Round(cropX * cropScale))
	maxX := srcWidth - cropWidth
	if x < 0 {
		x = 0
	}
	if x > maxX {
		x = maxX
	}

	return Geometry{
		SrcWidth:  srcWidth,
		SrcHeight: srcHeight,
		CropWidth: cropWidth,
		CropX:     x,
	}, nil
}
