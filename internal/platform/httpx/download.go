package httpx

import (
	"fmt"
	"log"
	"mime"
	"net/http"
	"path/filepath"
)

func init() {
	ensureMimeType(".pdf", "application/pdf")
	ensureMimeType(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("httpx: failed to register MIME type for %s: %v", ext, err)
	}
}

// File writes body as a download named filename. Inline files are shown by
// the browser when it can.
func File(w http.ResponseWriter, filename string, inline bool, body []byte) {
	typ := mime.TypeByExtension(filepath.Ext(filename))
	if typ == "" {
		typ = "application/octet-stream"
	}
	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", typ)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disposition, filename))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
