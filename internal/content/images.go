package content

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"

	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

const (
	avatarWidth  = 200
	avatarHeight = 200
	coverWidth   = 1200
	coverHeight  = 300
)

// palette holds the brand background colors. The profile name picks one
// deterministically so the same therapist always gets the same look.
var palette = []color.NRGBA{
	{R: 0x4a, G: 0x90, B: 0xe2, A: 0xff},
	{R: 0x2c, G: 0x3e, B: 0x50, A: 0xff},
	{R: 0x27, G: 0xae, B: 0x60, A: 0xff},
	{R: 0x8e, G: 0x44, B: 0xad, A: 0xff},
	{R: 0xd3, G: 0x54, B: 0x00, A: 0xff},
}

func pickColor(name string) color.NRGBA {
	h := fnv.New32a()
	h.Write([]byte(name))
	return palette[h.Sum32()%uint32(len(palette))]
}

func darken(c color.NRGBA, factor float64) color.NRGBA {
	scale := func(v uint8) uint8 { return uint8(float64(v) * (1 - factor)) }
	return color.NRGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: c.A}
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 { return uint8(float64(x) + (float64(y)-float64(x))*t) }
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("content: failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateAvatar renders the 200x200 community avatar: a radial gradient in
// the therapist's brand color with a light ring accent.
func GenerateAvatar(p *domain.StudentProfile) ([]byte, error) {
	base := pickColor(p.Name)
	edge := darken(base, 0.3)
	img := image.NewNRGBA(image.Rect(0, 0, avatarWidth, avatarHeight))

	cx, cy := float64(avatarWidth)/2, float64(avatarHeight)/2
	maxDist := cx
	for y := 0; y < avatarHeight; y++ {
		for x := 0; x < avatarWidth; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			t := (dx*dx + dy*dy) / (maxDist * maxDist)
			if t > 1 {
				t = 1
			}
			img.SetNRGBA(x, y, lerp(base, edge, t))
		}
	}

	// Ring accent at 70% radius.
	ring := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x60}
	inner := 0.66 * maxDist * 0.66 * maxDist
	outer := 0.70 * maxDist * 0.70 * maxDist
	for y := 0; y < avatarHeight; y++ {
		for x := 0; x < avatarWidth; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			d := dx*dx + dy*dy
			if d >= inner && d <= outer {
				img.SetNRGBA(x, y, lerp(img.NRGBAAt(x, y), ring, 0.4))
			}
		}
	}

	return encodePNG(img)
}

// GenerateCover renders the 1200x300 community cover: a diagonal gradient
// with a band along the bottom edge.
func GenerateCover(p *domain.StudentProfile) ([]byte, error) {
	base := pickColor(p.Name)
	edge := darken(base, 0.2)
	img := image.NewNRGBA(image.Rect(0, 0, coverWidth, coverHeight))

	for y := 0; y < coverHeight; y++ {
		for x := 0; x < coverWidth; x++ {
			t := (float64(x)/coverWidth + float64(y)/coverHeight) / 2
			img.SetNRGBA(x, y, lerp(base, edge, t))
		}
	}

	band := darken(base, 0.45)
	for y := coverHeight - 40; y < coverHeight; y++ {
		for x := 0; x < coverWidth; x++ {
			img.SetNRGBA(x, y, band)
		}
	}

	return encodePNG(img)
}
