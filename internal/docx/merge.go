package docx

import (
	"bytes"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MergeStats summarises one merge.
type MergeStats struct {
	Parts        int
	Blocks       int
	Replacements int
	// Unused lists map tokens that never occurred in the document.
	Unused []string
	// Unresolved lists tokens left in the document text after merging, including
	// tokens split across differently formatted runs.
	Unresolved []string
}

// Tokens returns every distinct placeholder token contained in a single run after
// run merging, across all mergeable parts.
func (d *Document) Tokens() ([]string, error) {
	seen := make(map[string]struct{})
	for _, e := range d.mergeable() {
		blocks, err := scanBlocks(e.data)
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			for _, t := range b.tokens() {
				seen[t] = struct{}{}
			}
		}
	}
	return sortedSet(seen), nil
}

// Merge replaces tokens with values in every mergeable part. Parts are rewritten
// only after all of them have been computed, so a failure leaves the document
// unchanged. Blocks without a replacement keep their original bytes.
func (d *Document) Merge(values map[string]string) (MergeStats, error) {
	parts := d.mergeable()
	rewritten := make([][]byte, len(parts))
	results := make([]partResult, len(parts))

	var g errgroup.Group
	for i, e := range parts {
		g.Go(func() error {
			out, res, err := mergePart(e.data, values)
			if err != nil {
				return err
			}
			rewritten[i] = out
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MergeStats{}, err
	}

	stats := MergeStats{Parts: len(parts)}
	used := make(map[string]struct{})
	unresolved := make(map[string]struct{})
	for i, e := range parts {
		e.data = rewritten[i]
		stats.Blocks += results[i].blocks
		stats.Replacements += results[i].replacements
		for t := range results[i].used {
			used[t] = struct{}{}
		}
		for t := range results[i].unresolved {
			unresolved[t] = struct{}{}
		}
	}
	for t := range values {
		if _, ok := used[t]; !ok && strings.HasPrefix(t, "{{") {
			stats.Unused = append(stats.Unused, t)
		}
	}
	sort.Strings(stats.Unused)
	stats.Unresolved = sortedSet(unresolved)
	return stats, nil
}

type partResult struct {
	blocks       int
	replacements int
	used         map[string]struct{}
	unresolved   map[string]struct{}
}

func mergePart(data []byte, values map[string]string) ([]byte, partResult, error) {
	res := partResult{used: map[string]struct{}{}, unresolved: map[string]struct{}{}}
	blocks, err := scanBlocks(data)
	if err != nil {
		return nil, res, err
	}
	res.blocks = len(blocks)

	var out bytes.Buffer
	out.Grow(len(data))
	last := 0
	for _, b := range blocks {
		runs, n := replaceBlock(b, values, res.used)
		for _, t := range tokenPat.FindAllString(unreplacedText(runs), -1) {
			res.unresolved[t] = struct{}{}
		}
		if n == 0 {
			continue
		}
		res.replacements += n
		out.Write(data[last:b.start])
		encodeRuns(&out, runs)
		last = b.end
	}
	if res.replacements == 0 {
		return data, res, nil
	}
	out.Write(data[last:])
	return out.Bytes(), res, nil
}

// replaceBlock splices every known token of the block, in sorted token order.
func replaceBlock(b block, values map[string]string, used map[string]struct{}) ([]run, int) {
	candidates := make(map[string]struct{})
	for _, t := range b.tokens() {
		if _, ok := values[t]; ok {
			candidates[t] = struct{}{}
		}
	}
	runs := b.runs
	total := 0
	for _, t := range sortedSet(candidates) {
		var n int
		runs, n = splice(runs, t, values[t])
		if n > 0 {
			used[t] = struct{}{}
			total += n
		}
	}
	return runs, total
}

// unreplacedText joins the original text of a block with replaced values blanked,
// so tokens formed across run boundaries are still reported.
func unreplacedText(runs []run) string {
	var sb strings.Builder
	for _, r := range runs {
		if r.value {
			sb.WriteByte(0)
			continue
		}
		sb.WriteString(r.text)
	}
	return sb.String()
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
