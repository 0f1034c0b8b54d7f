package sceneio

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Codec reads or writes one interchange format against the foreign scene
// structure. A codec may support only one direction.
type Codec interface {
	FormatID() string
	Extensions() []string
	CanExport() bool
	CanImport() bool
	Export(scene *ForeignScene, path string, progress ProgressFunc) error
	Import(path string, progress ProgressFunc) (*ForeignScene, error)
}

var (
	codecMu sync.RWMutex
	codecs  []Codec
)

// RegisterCodec appends a codec to the lookup set. Built-ins register at
// init; later registrations win on extension clashes.
func RegisterCodec(c Codec) {
	codecMu.Lock()
	codecs = append(codecs, c)
	codecMu.Unlock()
}

func init() {
	RegisterCodec(&mstCodec{})
	RegisterCodec(&gltfCodec{})
	RegisterCodec(&objCodec{})
	RegisterCodec(&stlCodec{})
	RegisterCodec(&fbxCodec{})
}

// codecFor resolves a codec by explicit format id, or by the file extension
// when the id is empty.
func codecFor(formatID, path string) (Codec, error) {
	codecMu.RLock()
	defer codecMu.RUnlock()
	if formatID != "" {
		for i := len(codecs) - 1; i >= 0; i-- {
			if codecs[i].FormatID() == formatID {
				return codecs[i], nil
			}
		}
		return nil, fmt.Errorf("unknown format %q", formatID)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return nil, fmt.Errorf("cannot infer format: %q has no extension", path)
	}
	for i := len(codecs) - 1; i >= 0; i-- {
		for _, e := range codecs[i].Extensions() {
			if e == ext {
				return codecs[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no codec for extension %q", ext)
}

// ExportFormats lists the format ids usable for writing.
func ExportFormats() []string {
	return formatIDs(func(c Codec) bool { return c.CanExport() })
}

// ImportFormats lists the format ids usable for reading.
func ImportFormats() []string {
	return formatIDs(func(c Codec) bool { return c.CanImport() })
}

func formatIDs(keep func(Codec) bool) []string {
	codecMu.RLock()
	defer codecMu.RUnlock()
	var out []string
	for _, c := range codecs {
		if keep(c) {
			out = append(out, c.FormatID())
		}
	}
	return out
}
