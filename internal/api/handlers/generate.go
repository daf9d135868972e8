package handlers

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nikhilbhutani/talkinghead/internal/pipeline"
	"github.com/nikhilbhutani/talkinghead/internal/storage"
)

// maxMemory is how much of a multipart body is held in memory; larger parts
// spill to temporary files.
const maxMemory = 32 << 20

type GenerateHandler struct {
	pipeline     *pipeline.Pipeline
	exposeErrors bool
}

func NewGenerateHandler(p *pipeline.Pipeline, exposeErrors bool) *GenerateHandler {
	return &GenerateHandler{pipeline: p, exposeErrors: exposeErrors}
}

// Generate runs the whole pipeline within the request and responds with the
// video as an attachment.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	req, closeUploads, err := parseGenerateRequest(r)
	defer closeUploads()
	if err != nil {
		writePipelineError(w, r, err, h.exposeErrors)
		return
	}

	result, err := h.pipeline.Generate(r.Context(), req)
	if err != nil {
		writePipelineError(w, r, err, h.exposeErrors)
		return
	}

	serveVideo(w, r, result.VideoPath)
}

// parseGenerateRequest reads the image, audio and text fields. A body that
// cannot be parsed as multipart counts as missing inputs. The returned func
// closes any opened upload and is never nil.
func parseGenerateRequest(r *http.Request) (*pipeline.GenerateRequest, func(), error) {
	var opened []io.Closer
	closeAll := func() {
		for _, c := range opened {
			c.Close()
		}
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, closeAll, pipeline.ErrMissingInput
	}

	upload := func(field string) *pipeline.Upload {
		file, header, err := r.FormFile(field)
		if err != nil {
			return nil
		}
		opened = append(opened, file)
		return &pipeline.Upload{Filename: header.Filename, Content: file}
	}

	image := upload("image")
	audio := upload("audio")

	req, err := pipeline.NewGenerateRequest(r.PostFormValue("text"), image, audio)
	return req, closeAll, err
}

// serveVideo streams the file at path as an attachment named after its base name.
func serveVideo(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open video", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "video unavailable"})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.Error("failed to stat video", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "video unavailable"})
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Type", storage.ContentType(path))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}
