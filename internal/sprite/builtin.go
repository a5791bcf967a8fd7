package sprite

import (
	"image"
	"image/color"
	"time"
)

// Built-in sprites are drawn from character tables. Each character selects a
// palette entry; '.' is transparent.

var wifiArt = []string{
	"..333333333..",
	".3.........3.",
	"3...22222...3",
	"...2.....2...",
	"..2..111..2..",
	"....1...1....",
	".............",
	"......1......",
	".....111.....",
	"......1......",
}

var dinoBody = []string{
	"..........########",
	".........##.######",
	".........#########",
	".........#########",
	".........#####....",
	".........########.",
	"#.......######....",
	"#.....#########...",
	"##...##########...",
	"###############...",
	".##############...",
	"..############....",
	"...##########.....",
	"....########......",
}

var dinoLegs = [][]string{
	{
		"....###..##.......",
		"....##....#.......",
		"....#.....##......",
	},
	{
		"....###..##.......",
		"....##....##......",
		"....##............",
	},
	{
		"....###..##.......",
		"....#.....##......",
		"....##....#.......",
	},
	{
		"....###..##.......",
		"....##....##......",
		"..........##......",
	},
}

var noImageArt = []string{
	"##########",
	"##......##",
	"#.#....#.#",
	"#..#..#..#",
	"#...##...#",
	"#...##...#",
	"#..#..#..#",
	"#.#....#.#",
	"##......##",
	"##########",
}

var (
	wifiColor    = color.RGBA{R: 0x30, G: 0xa0, B: 0xff, A: 0xff}
	dinoColor    = color.RGBA{R: 0x53, G: 0x53, B: 0x53, A: 0xff}
	noImageColor = color.RGBA{R: 0xff, G: 0x20, B: 0x20, A: 0xff}
)

// rasterize converts rows of characters into an image using palette
func rasterize(rows []string, palette map[byte]color.RGBA) *image.RGBA {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	img := image.NewRGBA(image.Rect(0, 0, width, len(rows)))
	for y, row := range rows {
		for x := 0; x < len(row); x++ {
			if c, ok := palette[row[x]]; ok {
				img.SetRGBA(x, y, c)
			}
		}
	}
	return img
}

// WifiSprite is the three-frame connection animation shown while offline
func WifiSprite(now time.Time) *BakedSprite {
	frames := make([]image.Image, 0, 3)
	for level := byte('1'); level <= '3'; level++ {
		palette := make(map[byte]color.RGBA)
		for c := byte('1'); c <= level; c++ {
			palette[c] = wifiColor
		}
		frames = append(frames, rasterize(wifiArt, palette))
	}
	return NewBakedSprite(frames, 500*time.Millisecond, now)
}

// IdleSprite is the running dino shown while no scene is installed
func IdleSprite(now time.Time) *BakedSprite {
	palette := map[byte]color.RGBA{'#': dinoColor}
	frames := make([]image.Image, 0, len(dinoLegs))
	for _, legs := range dinoLegs {
		rows := append(append([]string{}, dinoBody...), legs...)
		frames = append(frames, rasterize(rows, palette))
	}
	return NewBakedSprite(frames, 700*time.Millisecond, now)
}

// MissingSprite is drawn in place of a sprite that is not in the cache
func MissingSprite(now time.Time) *BakedSprite {
	img := rasterize(noImageArt, map[byte]color.RGBA{'#': noImageColor})
	return NewBakedSprite([]image.Image{img}, 0, now)
}
