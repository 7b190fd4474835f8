package localmedia

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/freetype/truetype"
)

// validateFont fails a bad font path before ffmpeg starts. Only .ttf files
// are parsed; OpenType CFF fonts and collections are left to the engine,
// which reads formats the Go parser does not.
func validateFont(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("font %s is empty", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".ttf") {
		if _, err := truetype.Parse(data); err != nil {
			return fmt.Errorf("font %s is not a valid TrueType file: %w", path, err)
		}
	}
	return nil
}
