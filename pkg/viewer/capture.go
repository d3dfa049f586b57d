package viewer

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"
)

func capturePath(dir string, ts time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("latlng-%s.png", ts.Format("20060102-150405.000")))
}

// captureFrame copies img and writes it as a PNG under dir in the
// background.
func captureFrame(img *ebiten.Image, dir string, ts time.Time, log zerolog.Logger) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("creating capture directory")
		return
	}
	path := capturePath(dir, ts)

	rgba := image.NewRGBA(img.Bounds())
	img.ReadPixels(rgba.Pix)

	go func() {
		if err := writePNG(path, rgba); err != nil {
			log.Error().Err(err).Str("path", path).Msg("capture failed")
			return
		}
		log.Info().Str("path", path).Msg("captured frame")
	}()
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
