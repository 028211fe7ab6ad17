package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is preferred when the chosen voice is gone.
const DefaultLocale = "en-US"

// piper's default output rate when a model has no sidecar
const defaultVoiceRate = 22050

// Voice is an installed piper model.
type Voice struct {
	Name       string // file name without .onnx, e.g. en_US-lessac-medium
	Locale     string // BCP 47, e.g. en-US
	Model      string
	Config     string // sidecar path, empty when missing
	SampleRate int
}

// voiceSidecar is the part of piper's .onnx.json we read.
type voiceSidecar struct {
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

// VoiceCatalog lists the piper models in a directory. Voices can be added
// while the program runs, so every Scan reads the directory again.
type VoiceCatalog struct {
	dir string
}

// NewVoiceCatalog creates a catalog over dir.
func NewVoiceCatalog(dir string) *VoiceCatalog {
	return &VoiceCatalog{dir: dir}
}

// Dir returns the scanned directory.
func (c *VoiceCatalog) Dir() string {
	return c.dir
}

// Scan returns the installed voices sorted by name. A missing directory has
// no voices.
func (c *VoiceCatalog) Scan() ([]Voice, error) {
	if c.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read voices: %w", err)
	}

	var voices []Voice
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".onnx") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".onnx")
		v := Voice{
			Name:       name,
			Model:      filepath.Join(c.dir, e.Name()),
			SampleRate: defaultVoiceRate,
			Locale:     normalizeLocale(strings.SplitN(name, "-", 2)[0]),
		}
		if sc, path, ok := readSidecar(v.Model); ok {
			v.Config = path
			if sc.Language.Code != "" {
				v.Locale = normalizeLocale(sc.Language.Code)
			}
			if sc.Audio.SampleRate > 0 {
				v.SampleRate = sc.Audio.SampleRate
			}
		}
		voices = append(voices, v)
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].Name < voices[j].Name })
	return voices, nil
}

func readSidecar(model string) (voiceSidecar, string, bool) {
	var sc voiceSidecar
	path := model + ".json"
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, "", false
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		// piper still runs with its built in defaults
		return sc, path, true
	}
	return sc, path, true
}

// normalizeLocale turns piper's en_US into en-US. Unparseable codes are
// kept as written.
func normalizeLocale(code string) string {
	code = strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}

// ResolveVoice picks the voice to speak with: the named one when it is still
// installed, otherwise the first DefaultLocale voice, otherwise the first.
func ResolveVoice(voices []Voice, name string) (Voice, error) {
	if len(voices) == 0 {
		return Voice{}, ErrNoVoices
	}
	if name != "" {
		for _, v := range voices {
			if strings.EqualFold(v.Name, name) {
				return v, nil
			}
		}
	}
	prefix := strings.ToLower(DefaultLocale)
	for _, v := range voices {
		if strings.HasPrefix(strings.ToLower(v.Locale), prefix) {
			return v, nil
		}
	}
	return voices[0], nil
}
