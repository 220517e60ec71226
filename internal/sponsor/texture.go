package sponsor

import (
	"bytes"
	"encoding/base64"
	"hash/fnv"
	"image"
	"image/color"
	_ "image/gif"  // Support GIF uploads
	_ "image/jpeg" // Support JPEG uploads
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"
)

const (
	textureSize  = 64
	paletteSize  = 16
	ditherSpread = 24.0
)

// bayer4 is the classic 4x4 ordered-dither threshold matrix.
var bayer4 = [4][4]float64{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// decodePattern unwraps an optional data URI prefix and decodes the base64
// payload, padded or not.
func decodePattern(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(s)
	}
	return raw, err
}

func checkImage(raw []byte) error {
	_, _, err := image.DecodeConfig(bytes.NewReader(raw))
	return err
}

// patternImage returns the sponsor's uploaded image, or a generated
// placeholder tile when none was provided.
func patternImage(sp *Sponsor) (image.Image, error) {
	if sp.PatternImage == "" {
		return placeholderPattern(sp.Name, sp.ID), nil
	}
	raw, err := decodePattern(sp.PatternImage)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// pixelate bakes an arbitrary image into the tile served to clients:
// downscale to 64x64, quantize to a 16-color palette drawn from the image
// itself, 4x4 ordered Bayer dither.
func pixelate(src image.Image) *image.Paletted {
	small := image.NewRGBA(image.Rect(0, 0, textureSize, textureSize))
	draw.CatmullRom.Scale(small, small.Bounds(), src, src.Bounds(), draw.Src, nil)

	pal := buildPalette(small, paletteSize)
	out := image.NewPaletted(small.Bounds(), pal)
	for y := 0; y < textureSize; y++ {
		for x := 0; x < textureSize; x++ {
			c := small.RGBAAt(x, y)
			t := (bayer4[y%4][x%4]/16.0 - 0.5) * ditherSpread
			c.R = ditherByte(c.R, t)
			c.G = ditherByte(c.G, t)
			c.B = ditherByte(c.B, t)
			c.A = 0xff
			out.SetColorIndex(x, y, uint8(pal.Index(c)))
		}
	}
	return out
}

func ditherByte(v uint8, t float64) uint8 {
	f := float64(v) + t
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}

// buildPalette derives up to n colors from the image by median cut: split
// the box with the widest channel spread at its median until n boxes exist,
// then average each box.
func buildPalette(img *image.RGBA, n int) color.Palette {
	px := make([]color.RGBA, 0, textureSize*textureSize)
	for y := 0; y < textureSize; y++ {
		for x := 0; x < textureSize; x++ {
			c := img.RGBAAt(x, y)
			c.A = 0xff
			px = append(px, c)
		}
	}

	boxes := [][]color.RGBA{px}
	for len(boxes) < n {
		bi, ch := widestBox(boxes)
		if bi < 0 {
			break
		}
		b := boxes[bi]
		sort.Slice(b, func(i, j int) bool { return channel(b[i], ch) < channel(b[j], ch) })
		mid := len(b) / 2
		boxes[bi] = b[:mid]
		boxes = append(boxes, b[mid:])
	}

	pal := make(color.Palette, 0, len(boxes))
	for _, b := range boxes {
		pal = append(pal, averageColor(b))
	}
	return pal
}

// widestBox picks the box and channel with the largest value spread, or
// (-1, 0) when nothing is left to split.
func widestBox(boxes [][]color.RGBA) (int, int) {
	bestBox, bestCh, bestSpread := -1, 0, 0
	for bi, b := range boxes {
		if len(b) < 2 {
			continue
		}
		for ch := 0; ch < 3; ch++ {
			lo, hi := 255, 0
			for _, c := range b {
				v := channel(c, ch)
				if v < lo {
					lo = v
				}
				if v > hi {
					hi = v
				}
			}
			if spread := hi - lo; spread > bestSpread {
				bestBox, bestCh, bestSpread = bi, ch, spread
			}
		}
	}
	return bestBox, bestCh
}

func channel(c color.RGBA, ch int) int {
	switch ch {
	case 0:
		return int(c.R)
	case 1:
		return int(c.G)
	}
	return int(c.B)
}

func averageColor(b []color.RGBA) color.RGBA {
	if len(b) == 0 {
		return color.RGBA{A: 0xff}
	}
	var r, g, bl int
	for _, c := range b {
		r += int(c.R)
		g += int(c.G)
		bl += int(c.B)
	}
	n := len(b)
	return color.RGBA{R: uint8(r / n), G: uint8(g / n), B: uint8(bl / n), A: 0xff}
}

// placeholderPattern renders a fallback tile for sponsors without an
// uploaded image: a two-tone diagonal weave keyed off the sponsor id, with
// the name initials stamped in the middle.
func placeholderPattern(name, id string) image.Image {
	h := fnv.New32a()
	h.Write([]byte(id))
	seed := h.Sum32()
	base := tone(seed)
	accent := tone(seed >> 11)

	dc := gg.NewContext(textureSize, textureSize)
	dc.SetColor(base)
	dc.Clear()
	dc.SetColor(accent)
	dc.SetLineWidth(6)
	for x := -textureSize; x < textureSize*2; x += 16 {
		dc.DrawLine(float64(x), 0, float64(x+textureSize), textureSize)
	}
	dc.Stroke()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(initials(name), textureSize/2, textureSize/2, 0.5, 0.5)
	return dc.Image()
}

func tone(h uint32) color.RGBA {
	return color.RGBA{
		R: uint8(64 + h%160),
		G: uint8(64 + (h>>8)%160),
		B: uint8(64 + (h>>16)%160),
		A: 0xff,
	}
}

func initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		out = append(out, unicode.ToUpper([]rune(word)[0]))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

// writePNG writes via temp file and rename so readers never see a partial
// texture.
func writePNG(dst string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".bake-*")
	if err != nil {
		return err
	}
	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
