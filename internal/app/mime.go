package app

import (
	"log/slog"
	"mime"
)

// reportTypes are the output formats served by the download endpoint. Minimal
// container images ship without /etc/mime.types, so they are registered here.
var reportTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pdf":  "application/pdf",
}

func init() {
	for ext, typ := range reportTypes {
		if mime.TypeByExtension(ext) != "" {
			continue
		}
		if err := mime.AddExtensionType(ext, typ); err != nil {
			slog.Default().Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
		}
	}
}
