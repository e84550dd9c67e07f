package pdf

import (
	"encoding/base64"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"
)

const (
	resultSuffix     = " (双语).pdf"
	fallbackStem     = "output"
	dualMarker       = "dual"
	pdfMIME          = "application/pdf"
	noOutputMessage  = "No PDF output found in temporary directory"
	badOutputMessage = "translator output is not a PDF"
)

var disablePDFConfigOnce sync.Once

// Artifact は翻訳結果のPDFです。
type Artifact struct {
	Path  string
	Size  int64
	Pages int
	Data  []byte
}

// Base64 は PDF の内容を標準 base64 で返します。
func (a *Artifact) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

type artifactCandidate struct {
	path    string
	modTime time.Time
	dual    bool
}

// LocateArtifact は root 配下を再帰的に探し、成果物のPDFを選びます。
// ファイル名に dual を含むものを優先し、その中で最も新しいものを返します。
func LocateArtifact(root string) (string, error) {
	var candidates []artifactCandidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		candidates = append(candidates, artifactCandidate{
			path:    path,
			modTime: info.ModTime(),
			dual:    strings.Contains(strings.ToLower(d.Name()), dualMarker),
		})
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to scan %s", root)
	}
	if len(candidates) == 0 {
		return "", newError("NO_OUTPUT", noOutputMessage, nil)
	}

	preferDual := false
	for _, c := range candidates {
		if c.dual {
			preferDual = true
			break
		}
	}

	var best *artifactCandidate
	for i := range candidates {
		c := &candidates[i]
		if preferDual && !c.dual {
			continue
		}
		if best == nil || c.modTime.After(best.modTime) {
			best = c
		}
	}
	return best.path, nil
}

// ReadArtifact は成果物を読み込みます。内容がPDFでなければエラーを返します。
// ページ数は取得できた場合のみ設定します。
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read artifact %s", path)
	}
	if !mimetype.Detect(data).Is(pdfMIME) {
		return nil, newError("INVALID_OUTPUT", badOutputMessage, nil)
	}
	return &Artifact{
		Path:  path,
		Size:  int64(len(data)),
		Pages: countPages(path),
		Data:  data,
	}, nil
}

func countPages(path string) (pages int) {
	disablePDFConfigOnce.Do(pdfapi.DisableConfigDir)
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	n, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0
	}
	return n
}

// ResultFilename は元ファイル名から成果物のファイル名を作ります。
func ResultFilename(source string) string {
	base := filepath.Base(strings.TrimSpace(source))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if source == "" || stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = fallbackStem
	}
	return stem + resultSuffix
}
