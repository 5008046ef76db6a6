// Package volume reads image stacks into voxel grids the network can consume
// and writes predictions back out as image slices.
package volume

import (
	"fmt"
	"image"
	"image/color"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/ts"
	"golang.org/x/image/draw"
)

var (
	ErrEmpty       = errors.New("empty volume")
	ErrSliceSize   = errors.New("slices differ in size")
	ErrUnsupported = errors.New("unsupported image format")
)

// Volume is a single channel D x H x W grid with values in [0, 1], stored
// slice by slice, row major.
type Volume struct {
	Depth  int
	Height int
	Width  int
	Voxels []float32
}

// New allocates a zero filled volume.
func New(depth, height, width int) *Volume {
	return &Volume{
		Depth:  depth,
		Height: height,
		Width:  width,
		Voxels: make([]float32, depth*height*width),
	}
}

// Shape is [D H W].
func (v *Volume) Shape() []int64 {
	return []int64{int64(v.Depth), int64(v.Height), int64(v.Width)}
}

// At returns the voxel at slice z, row y, column x.
func (v *Volume) At(z, y, x int) float32 {
	return v.Voxels[(z*v.Height+y)*v.Width+x]
}

// Values returns the voxels as float64, e.g. for statistics.
func (v *Volume) Values() []float64 {
	vals := make([]float64, len(v.Voxels))
	for i, x := range v.Voxels {
		vals[i] = float64(x)
	}
	return vals
}

// Load reads a volume from a multi-page TIFF file, a single image file or a
// directory of slices ordered by file name.
func Load(path string) (*Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return loadDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return loadTIFF(path)
	}
	img, err := readImage(path)
	if err != nil {
		return nil, err
	}
	return FromImages([]image.Image{img})
}

func loadTIFF(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages, errs, err := tiff.DecodeAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	var slices []image.Image
	for i, page := range pages {
		if len(page) == 0 {
			continue
		}
		if len(errs) > i && len(errs[i]) > 0 && errs[i][0] != nil {
			return nil, errors.Wrapf(errs[i][0], "decode %s page %d", path, i)
		}
		slices = append(slices, page[0])
	}
	return FromImages(slices)
}

func loadDir(dir string) (*Volume, error) {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	slices := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := readImage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		slices = append(slices, img)
	}
	return FromImages(slices)
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}

// readImage reads image from file.
func readImage(filename string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		f, err := os.Open(filename)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tiff.Decode(f)
	case ".png", ".jpg", ".jpeg":
		return imaging.Open(filename)
	}
	return nil, errors.Wrapf(ErrUnsupported, "%s", filename)
}

// FromImages stacks equally sized slices into a volume. Colour slices are
// converted to luminance.
func FromImages(slices []image.Image) (*Volume, error) {
	if len(slices) == 0 {
		return nil, ErrEmpty
	}
	size := slices[0].Bounds().Size()
	v := New(len(slices), size.Y, size.X)
	plane := size.X * size.Y

	for z, img := range slices {
		if s := img.Bounds().Size(); s != size {
			return nil, errors.Wrapf(ErrSliceSize, "slice %d is %v, expected %v", z, s, size)
		}
		g := toGray(img)
		for i, p := range g.Pix[:plane] {
			v.Voxels[z*plane+i] = float32(p) / 255
		}
	}
	return v, nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Stride == g.Rect.Dx() && g.Rect.Min == (image.Point{}) {
		return g
	}
	var src image.Image = img
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
	default:
		src = imaging.Grayscale(img)
	}
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// Slice renders slice z as an 8 bit grey image. Values are clamped to
// [0, 1].
func (v *Volume) Slice(z int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, v.Width, v.Height))
	plane := v.Width * v.Height
	for i, x := range v.Voxels[z*plane : (z+1)*plane] {
		img.Pix[i] = uint8(clamp(x)*255 + 0.5)
	}
	return img
}

func (v *Volume) slice16(z int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, v.Width, v.Height))
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(clamp(v.At(z, y, x))*65535 + 0.5)})
		}
	}
	return img
}

// Resize rescales every slice to height x width. Depth is unchanged.
func (v *Volume) Resize(height, width int) *Volume {
	out := New(v.Depth, height, width)
	for z := 0; z < v.Depth; z++ {
		img := resize.Resize(uint(width), uint(height), v.slice16(z), resize.Bilinear)
		b := img.Bounds()
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				c := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				out.Voxels[(z*height+y)*width+x] = float32(c.Y) / 65535
			}
		}
	}
	return out
}

// Tensor returns the volume as a [1, 1, D, H, W] float tensor.
func (v *Volume) Tensor() *ts.Tensor {
	dims := []int64{1, 1, int64(v.Depth), int64(v.Height), int64(v.Width)}
	return ts.MustOfSlice(v.Voxels).MustView(dims, true)
}

// FromTensor copies channel c of the first sample of a [N, C, D, H, W] tensor
// into a volume.
func FromTensor(x *ts.Tensor, c int) (*Volume, error) {
	size := x.MustSize()
	if len(size) != 5 {
		return nil, errors.Errorf("expected [N C D H W] tensor, got %v", size)
	}
	if c < 0 || int64(c) >= size[1] {
		return nil, errors.Errorf("channel %d out of range [0, %d)", c, size[1])
	}
	v := New(int(size[2]), int(size[3]), int(size[4]))
	n := len(v.Voxels)
	vals := x.Float64Values()
	for i, val := range vals[c*n : (c+1)*n] {
		v.Voxels[i] = float32(val)
	}
	return v, nil
}

// SavePNG writes one PNG per slice as dir/prefix_zzz.png and returns the
// file names.
func (v *Volume) SavePNG(dir, prefix string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	files := make([]string, v.Depth)
	for z := 0; z < v.Depth; z++ {
		files[z] = filepath.Join(dir, fmt.Sprintf("%v_%03d.png", prefix, z))
		if err := imaging.Save(v.Slice(z), files[z]); err != nil {
			return nil, errors.Wrapf(err, "save slice %d", z)
		}
	}
	return files, nil
}

func clamp(x float32) float32 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
