package extract

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ImageNet statistics, RGB order.
var (
	Mean = [3]float64{0.485, 0.456, 0.406}
	Std  = [3]float64{0.229, 0.224, 0.225}
)

// Tensor is a 1x3xSizexSize float32 blob in RGB channel order. The caller
// owns Blob and must Close it.
type Tensor struct {
	Blob gocv.Mat
	Size int
}

// Shape returns the NCHW shape with batch 1.
func (t Tensor) Shape() []int64 {
	return []int64{1, 3, int64(t.Size), int64(t.Size)}
}

// Values exposes the blob's memory. It is valid until Close.
func (t Tensor) Values() ([]float32, error) {
	if t.Blob.Ptr() == nil || t.Blob.Empty() {
		return nil, fmt.Errorf("extract: empty tensor")
	}
	return t.Blob.DataPtrFloat32()
}

// Close releases the blob.
func (t Tensor) Close() error {
	if t.Blob.Ptr() == nil {
		return nil
	}
	return t.Blob.Close()
}

// Normalize resizes a BGR crop to size x size and returns the ImageNet
// normalized NCHW RGB blob.
func Normalize(crop gocv.Mat, size int) (Tensor, error) {
	if crop.Empty() {
		return Tensor{}, ErrEmptyCrop
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(crop, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	scaled := gocv.NewMat()
	defer scaled.Close()
	rgb.ConvertToWithParams(&scaled, gocv.MatTypeCV32F, 1.0/255, 0)

	// (x - mean) / std per channel
	planes := gocv.Split(scaled)
	defer func() {
		for i := range planes {
			planes[i].Close()
		}
	}()
	if len(planes) != 3 {
		return Tensor{}, fmt.Errorf("extract: expected 3 channels, got %d", len(planes))
	}
	for c := range planes {
		gocv.AddWeighted(planes[c], 1/Std[c], planes[c], 0, -Mean[c]/Std[c], &planes[c])
	}

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(planes, &merged)

	blob := gocv.BlobFromImage(merged, 1.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), false, false)
	if blob.Empty() {
		blob.Close()
		return Tensor{}, fmt.Errorf("extract: blobFromImage returned nothing")
	}
	return Tensor{Blob: blob, Size: size}, nil
}
