package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
)

var (
	// runOpen matches the start tag of a run but not of w:rPr or other w:r* names.
	runOpen  = regexp.MustCompile(`<w:r[\s>/]`)
	runClose = []byte("</w:r>")
	rPrOpen  = regexp.MustCompile(`^\s*(?:<w:rPr/>|<w:rPr>)`)
	rPrClose = []byte("</w:rPr>")
	// textElem matches a text child, including the empty self-closing form. It
	// does not match w:tab or w:tbl.
	textElem = regexp.MustCompile(`<w:t(?:\s[^>]*[^/>])?>([^<]*)</w:t>|<w:t(?:\s[^>]*)?/>`)
	// runGap is what may sit between two runs of the same block.
	runGap   = regexp.MustCompile(`^(?:\s|<w:proofErr(?:\s[^>]*)?/>)*$`)
	tokenPat = regexp.MustCompile(`\{\{[^{}]+\}\}`)
)

// run is one segment of a block: either text sharing a set of run properties,
// or raw non-text run content (tabs, breaks, field characters, drawings) that
// stays in place and separates the text around it.
type run struct {
	props string
	text  string
	raw   string
	// value marks text produced by a replacement; it is never rescanned.
	value bool
}

func (r run) isText() bool { return r.raw == "" }

// block is a maximal sequence of adjacent runs inside one part.
type block struct {
	start, end int
	runs       []run
}

// scanBlocks finds the run blocks of an XML part. Text segments are merged when
// their properties are byte-identical and nothing but text lies between them.
func scanBlocks(part []byte) ([]block, error) {
	var blocks []block
	for _, loc := range findRuns(part) {
		segs, err := decodeRun(part[loc[1]:loc[2]])
		if err != nil {
			return nil, err
		}
		if n := len(blocks); n > 0 && runGap.Match(part[blocks[n-1].end:loc[0]]) {
			blocks[n-1].end = loc[3]
			blocks[n-1].runs = append(blocks[n-1].runs, segs...)
			continue
		}
		blocks = append(blocks, block{start: loc[0], end: loc[3], runs: segs})
	}
	for i := range blocks {
		blocks[i].runs = mergeRuns(blocks[i].runs)
	}
	return blocks, nil
}

// findRuns returns the innermost runs of part as [start, bodyStart, bodyEnd,
// end] offsets. A run holding other runs (text boxes inside drawings) is not
// itself returned; its inner runs are.
func findRuns(part []byte) [][4]int {
	var out [][4]int
	i := 0
	for {
		loc := runOpen.FindIndex(part[i:])
		if loc == nil {
			return out
		}
		start := i + loc[0]
		gt := bytes.IndexByte(part[start:], '>')
		if gt < 0 {
			return out
		}
		bodyStart := start + gt + 1
		if part[bodyStart-2] == '/' {
			i = bodyStart
			continue
		}
		rel := bytes.Index(part[bodyStart:], runClose)
		if rel < 0 {
			return out
		}
		bodyEnd := bodyStart + rel
		if inner := runOpen.FindIndex(part[bodyStart:bodyEnd]); inner != nil {
			i = bodyStart + inner[0]
			continue
		}
		end := bodyEnd + len(runClose)
		out = append(out, [4]int{start, bodyStart, bodyEnd, end})
		i = end
	}
}

// decodeRun splits a run body into its properties and ordered segments.
func decodeRun(body []byte) ([]run, error) {
	var props string
	rest := body
	if m := rPrOpen.FindIndex(rest); m != nil {
		if bytes.HasSuffix(rest[:m[1]], []byte("/>")) {
			rest = rest[m[1]:]
		} else {
			end := bytes.Index(rest, rPrClose)
			if end < 0 {
				return nil, errors.New("docx: unterminated run properties")
			}
			end += len(rPrClose)
			props = string(bytes.TrimSpace(rest[:end]))
			rest = rest[end:]
		}
	}

	var segs []run
	last := 0
	addRaw := func(chunk []byte) {
		if len(bytes.TrimSpace(chunk)) > 0 {
			segs = append(segs, run{props: props, raw: string(chunk)})
		}
	}
	for _, m := range textElem.FindAllSubmatchIndex(rest, -1) {
		addRaw(rest[last:m[0]])
		last = m[1]
		text := ""
		if m[2] >= 0 {
			s, err := unescape(string(rest[m[2]:m[3]]))
			if err != nil {
				return nil, err
			}
			text = s
		}
		if n := len(segs); n > 0 && segs[n-1].isText() {
			segs[n-1].text += text
			continue
		}
		segs = append(segs, run{props: props, text: text})
	}
	addRaw(rest[last:])
	return segs, nil
}

func mergeRuns(runs []run) []run {
	out := runs[:0:0]
	for _, r := range runs {
		if n := len(out); n > 0 && r.isText() && out[n-1].isText() && out[n-1].props == r.props {
			out[n-1].text += r.text
			continue
		}
		out = append(out, r)
	}
	return out
}

// tokens returns the placeholder tokens fully contained in single text segments.
func (b block) tokens() []string {
	var out []string
	for _, r := range b.runs {
		if r.value {
			continue
		}
		out = append(out, tokenPat.FindAllString(r.text, -1)...)
	}
	return out
}

// splice replaces every occurrence of token inside a single run with value. The
// run is split into before, value and after pieces sharing its properties.
func splice(runs []run, token, value string) ([]run, int) {
	out := make([]run, 0, len(runs))
	count := 0
	for _, r := range runs {
		if r.value || !strings.Contains(r.text, token) {
			out = append(out, r)
			continue
		}
		rest := r.text
		for {
			i := strings.Index(rest, token)
			if i < 0 {
				break
			}
			if i > 0 {
				out = append(out, run{props: r.props, text: rest[:i]})
			}
			out = append(out, run{props: r.props, text: value, value: true})
			rest = rest[i+len(token):]
			count++
		}
		if rest != "" {
			out = append(out, run{props: r.props, text: rest})
		}
	}
	return out, count
}

func encodeRuns(w *bytes.Buffer, runs []run) {
	for _, r := range runs {
		if !r.isText() {
			w.WriteString("<w:r>")
			w.WriteString(r.props)
			w.WriteString(r.raw)
			w.WriteString("</w:r>")
			continue
		}
		if r.text == "" {
			continue
		}
		w.WriteString("<w:r>")
		w.WriteString(r.props)
		w.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(w, []byte(r.text))
		w.WriteString("</w:t></w:r>")
	}
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, "&") {
		return s, nil
	}
	dec := xml.NewDecoder(strings.NewReader("<t>" + s + "</t>"))
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if cd, ok := tok.(xml.CharData); ok {
			sb.Write(cd)
		}
	}
	return sb.String(), nil
}
