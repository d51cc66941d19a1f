package manifest

import (
	"bytes"
	"strings"

	"github.com/yagualauncher/yagua/internal/integrity"
	"github.com/yagualauncher/yagua/internal/utils"
)

// versionString accepts both "1.2" and 12 for the version field.
type versionString string

func (v *versionString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := utils.JSONUnmarshal(data, &s); err != nil {
			return err
		}
		*v = versionString(s)
		return nil
	}
	*v = versionString(data)
	return nil
}

type wireManifest struct {
	Version versionString `json:"version"`
	BaseURL string        `json:"baseUrl,omitempty"`
	Files   []wireEntry   `json:"files"`
}

type wireEntry struct {
	Path     string `json:"path"`
	Size     *int64 `json:"size"`
	SHA256   string `json:"sha256,omitempty"`
	SHA1     string `json:"sha1,omitempty"`
	CRC32    string `json:"crc32,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Algo     string `json:"algo,omitempty"`
	URL      string `json:"url,omitempty"`

	PatchURL    string `json:"patchUrl,omitempty"`
	PatchSize   int64  `json:"patchSize,omitempty"`
	PatchSHA256 string `json:"patchSha256,omitempty"`
}

// Parse decodes and validates a manifest document. Unknown fields are ignored.
func Parse(data []byte) (*RemoteManifest, error) {
	var w wireManifest
	if err := utils.JSONUnmarshal(data, &w); err != nil {
		return nil, topLevelError("malformed json", err)
	}

	version := strings.TrimSpace(string(w.Version))
	if version == "" {
		return nil, topLevelError("missing version", nil)
	}

	m := &RemoteManifest{
		Version: version,
		BaseURL: strings.TrimSpace(w.BaseURL),
		Files:   make([]FileEntry, 0, len(w.Files)),
	}

	seen := make(map[string]struct{}, len(w.Files))
	for i, we := range w.Files {
		e, err := we.toEntry(i)
		if err != nil {
			return nil, err
		}
		if err := validateEntry(i, &e, seen); err != nil {
			return nil, err
		}
		m.Files = append(m.Files, e)
	}
	return m, nil
}

func (we wireEntry) toEntry(i int) (FileEntry, error) {
	e := FileEntry{Path: we.Path, URL: we.URL}
	if we.Size == nil {
		return e, &ParseError{Index: i, Path: we.Path, Reason: "missing size"}
	}
	e.Size = *we.Size

	switch {
	case we.Checksum != "":
		algo := integrity.DefaultAlgo
		if we.Algo != "" {
			var err error
			if algo, err = integrity.ParseAlgo(we.Algo); err != nil {
				return e, &ParseError{Index: i, Path: we.Path, Reason: "unsupported algo", Err: err}
			}
		}
		e.Checksum, e.Algo = we.Checksum, algo
	case we.SHA256 != "":
		e.Checksum, e.Algo = we.SHA256, integrity.SHA256
	case we.SHA1 != "":
		e.Checksum, e.Algo = we.SHA1, integrity.SHA1
	case we.CRC32 != "":
		e.Checksum, e.Algo = we.CRC32, integrity.CRC32
	}

	if we.PatchURL != "" {
		e.Patch = &PatchRef{
			URL:      we.PatchURL,
			Size:     we.PatchSize,
			Checksum: we.PatchSHA256,
			Algo:     integrity.SHA256,
		}
	}
	return e, nil
}

// Marshal encodes m in the same format Parse reads.
func Marshal(m *RemoteManifest) ([]byte, error) {
	w := wireManifest{
		Version: versionString(m.Version),
		BaseURL: m.BaseURL,
		Files:   make([]wireEntry, 0, len(m.Files)),
	}
	for _, e := range m.Files {
		size := e.Size
		we := wireEntry{
			Path:     e.Path,
			Size:     &size,
			Checksum: e.Checksum,
			Algo:     e.Algo.String(),
			URL:      e.URL,
		}
		if e.Patch != nil {
			we.PatchURL = e.Patch.URL
			we.PatchSize = e.Patch.Size
			we.PatchSHA256 = e.Patch.Checksum
		}
		w.Files = append(w.Files, we)
	}
	return utils.JSONMarshalIndent(w, "", "  ")
}
