package mcptools

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

type memTemplates map[string][]byte

func (m memTemplates) OpenTemplate(_ context.Context, ref string) ([]byte, error) {
	data, ok := m[ref]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func templateBytes(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0"?><w:document xmlns:w="x"><w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTemplateTokensClassifies(t *testing.T) {
	templates := memTemplates{
		"monthly.docx": templateBytes(t, "{{CY}} {{Sum3_A10_CY}} {{A100_debit_PY}} {{Sum9_A_CY}} {{SIGNATURE}}"),
	}
	infos, err := TemplateTokens(context.Background(), templates, "monthly.docx")
	require.NoError(t, err)

	kinds := make(map[string]string, len(infos))
	for _, info := range infos {
		kinds[info.Token] = info.Kind
	}
	require.Equal(t, map[string]string{
		"{{CY}}":            "metadata",
		"{{Sum3_A10_CY}}":   "summary",
		"{{A100_debit_PY}}": "account",
		"{{Sum9_A_CY}}":     "rejected",
		"{{SIGNATURE}}":     "other",
	}, kinds)

	_, err = TemplateTokens(context.Background(), templates, "missing.docx")
	require.ErrorIs(t, err, os.ErrNotExist)
}
