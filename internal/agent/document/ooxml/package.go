// Package ooxml reads the zip container shared by DOCX and PPTX files.
package ooxml

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/feichai0017/document-chunker/internal/models"
)

// maxPartSize caps how much of a single part is inflated.
const maxPartSize = 64 << 20

var ErrPartNotFound = errors.New("part not found")

// Package is an opened Office Open XML container.
type Package struct {
	data  []byte
	files map[string]*zip.File
}

// Open indexes the parts of an in-memory container.
func Open(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip container: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[strings.TrimPrefix(f.Name, "/")] = f
	}
	return &Package{data: data, files: files}, nil
}

func (p *Package) Has(name string) bool {
	_, ok := p.files[name]
	return ok
}

// Names returns the part names under prefix.
func (p *Package) Names(prefix string) []string {
	var out []string
	for name := range p.files {
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	return out
}

// Read inflates one part.
func (p *Package) Read(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) > maxPartSize {
		return nil, fmt.Errorf("part %s exceeds %d bytes", name, maxPartSize)
	}
	return data, nil
}

// Decode unmarshals one XML part into v.
func (p *Package) Decode(name string, v any) error {
	data, err := p.Read(name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// Relationships maps relationship IDs to targets for the .rels part of a
// source part, e.g. "ppt/presentation.xml".
func (p *Package) Relationships(source string) (map[string]string, error) {
	dir, file := "", source
	if i := strings.LastIndexByte(source, '/'); i >= 0 {
		dir, file = source[:i+1], source[i+1:]
	}
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := p.Decode(dir+"_rels/"+file+".rels", &rels); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = dir + target
		}
		out[r.ID] = target
	}
	return out, nil
}

type coreProperties struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}

type appProperties struct {
	Pages  int `xml:"Pages"`
	Slides int `xml:"Slides"`
}

// Metadata fills document metadata from docProps/core.xml and
// docProps/app.xml. Both parts are optional.
func (p *Package) Metadata(fileType models.FileType, mimeType string) models.DocumentMetadata {
	var core coreProperties
	_ = p.Decode("docProps/core.xml", &core)
	var app appProperties
	_ = p.Decode("docProps/app.xml", &app)

	hash := sha256.Sum256(p.data)
	hashString := hex.EncodeToString(hash[:])
	return models.DocumentMetadata{
		ID:        hashString[:8],
		Title:     strings.TrimSpace(core.Title),
		Author:    strings.TrimSpace(core.Creator),
		FileType:  fileType,
		FileSize:  int64(len(p.data)),
		MimeType:  mimeType,
		Pages:     max(app.Pages, app.Slides),
		CreatedAt: time.Now(),
		Hash:      hashString,
	}
}
