package audio

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

// playableExtensions lists the file types the device can play.
var playableExtensions = map[string]struct{}{
	".mp3":  {},
	".ogg":  {},
	".flac": {},
	".wav":  {},
}

// ErrNoAudioFiles is returned when the configured directory holds nothing playable.
var ErrNoAudioFiles = errors.New("no audio files")

// Picker selects a random playable file from a directory, so the user does
// not wake to the same ringtone every day.
type Picker struct {
	// dir is the directory scanned on every pick.
	dir string
}

// NewPicker creates a picker over the provided directory.
func NewPicker(dir string) *Picker {
	return &Picker{
		dir: dir,
	}
}

// Pick returns a random playable file. The directory is re-scanned on every
// call so dropped-in files are picked up without a restart.
func (p *Picker) Pick() (string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return "", fmt.Errorf("scan audio directory: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := playableExtensions[ext]; ok {
			files = append(files, filepath.Join(p.dir, entry.Name()))
		}
	}

	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoAudioFiles, p.dir)
	}

	return files[rand.IntN(len(files))], nil
}
