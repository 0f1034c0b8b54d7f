package sceneio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	"github.com/chai2010/tiff"
	mst "github.com/flywave/go-mst"
	"golang.org/x/image/bmp"
)

// DecodeTextureRGBA decodes the encoded bytes of a TextureParam into a flat
// RGBA buffer, top row first. The format is sniffed; hint is consulted only
// when sniffing fails.
func DecodeTextureRGBA(t TextureParam) (w, h int, rgba []byte, err error) {
	_, ft, err := image.Decode(bytes.NewReader(t.Data))
	if err != nil {
		ft = t.FormatHint
	}
	img, err := readImage(bytes.NewReader(t.Data), ft)
	if err != nil {
		return 0, 0, nil, err
	}
	bd := img.Bounds()
	return bd.Dx(), bd.Dy(), flattenRGBA(img), nil
}

func readImage(rd io.Reader, ft string) (image.Image, error) {
	switch ft {
	case "jpeg", "jpg":
		return jpeg.Decode(rd)
	case "png":
		return png.Decode(rd)
	case "gif":
		return gif.Decode(rd)
	case "bmp":
		return bmp.Decode(rd)
	case "tif", "tiff":
		return tiff.Decode(rd)
	default:
		return nil, errors.New("unknow format")
	}
}

func flattenRGBA(img image.Image) []byte {
	bd := img.Bounds()
	buf := make([]byte, 0, bd.Dx()*bd.Dy()*4)
	for y := 0; y < bd.Dy(); y++ {
		for x := 0; x < bd.Dx(); x++ {
			cl := img.At(bd.Min.X+x, bd.Min.Y+y)
			r, g, b, a := color.RGBAModel.Convert(cl).RGBA()
			buf = append(buf, byte(r&0xff), byte(g&0xff), byte(b&0xff), byte(a&0xff))
		}
	}
	return buf
}

// mstTextureFromFile loads an image file into a zlib-compressed RGBA mst
// texture record.
func mstTextureFromFile(path string, texID int) (*mst.Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, ft, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	img, err := readImage(f, ft)
	if err != nil {
		return nil, err
	}
	return mstTextureFromImage(img, texID), nil
}

func mstTextureFromImage(img image.Image, texID int) *mst.Texture {
	bd := img.Bounds()
	t := &mst.Texture{}
	t.Id = int32(texID)
	t.Format = mst.TEXTURE_FORMAT_RGBA
	t.Size = [2]uint64{uint64(bd.Dx()), uint64(bd.Dy())}
	t.Compressed = mst.TEXTURE_COMPRESSED_ZLIB
	t.Data = mst.CompressImage(flattenRGBA(img))
	return t
}
