// Package docx reads and rewrites WordprocessingML packages for placeholder
// merging.
package docx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
)

// ErrNotDocx is returned when the package has no main document part.
var ErrNotDocx = errors.New("docx: not a word document")

const mainPart = "word/document.xml"

var mergeablePart = regexp.MustCompile(`^word/(document|header\d*|footer\d*|footnotes|endnotes)\.xml$`)

type entry struct {
	header zip.FileHeader
	data   []byte
}

// Document is an in-memory word package. Entries keep their original order and
// compression; only mergeable XML parts are ever rewritten.
type Document struct {
	entries []*entry
}

// Parse reads a package from memory.
func Parse(raw []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("docx: read package: %w", err)
	}
	doc := &Document{entries: make([]*entry, 0, len(zr.File))}
	hasMain := false
	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, err
		}
		if f.Name == mainPart {
			hasMain = true
		}
		doc.entries = append(doc.entries, &entry{header: f.FileHeader, data: data})
	}
	if !hasMain {
		return nil, ErrNotDocx
	}
	return doc, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("docx: open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("docx: read entry %s: %w", f.Name, err)
	}
	return data, nil
}

// Part returns the raw content of a package entry.
func (d *Document) Part(name string) ([]byte, bool) {
	for _, e := range d.entries {
		if e.header.Name == name {
			return e.data, true
		}
	}
	return nil, false
}

func (d *Document) mergeable() []*entry {
	var out []*entry
	for _, e := range d.entries {
		if mergeablePart.MatchString(e.header.Name) {
			out = append(out, e)
		}
	}
	return out
}

// WriteTo serialises the package.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	for _, e := range d.entries {
		hdr := e.header
		hdr.CompressedSize64 = 0
		hdr.UncompressedSize64 = 0
		hdr.CRC32 = 0
		fw, err := zw.CreateHeader(&hdr)
		if err != nil {
			return cw.n, fmt.Errorf("docx: write entry %s: %w", hdr.Name, err)
		}
		if _, err := fw.Write(e.data); err != nil {
			return cw.n, fmt.Errorf("docx: write entry %s: %w", hdr.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("docx: close package: %w", err)
	}
	return cw.n, nil
}

// Bytes returns the serialised package.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
