package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
	"github.com/dgallion1/pagechunk/internal/parser"
	"github.com/dgallion1/pagechunk/internal/pipeline"
	"github.com/dgallion1/pagechunk/internal/render"
	"github.com/go-chi/chi/v5"
)

// uploadError is a rejected upload and the status it maps to.
type uploadError struct {
	msg  string
	code int
}

func (e *uploadError) Error() string { return e.msg }

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	// Extra 1MB for form overhead.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		jsonError(w, "file is required", http.StatusBadRequest)
		return
	}

	p, filename, err := s.pageFromUpload(files[0], r.MultipartForm.Value)
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			jsonError(w, ue.msg, ue.code)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(p, filename)
	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"page_id":  job.PageID,
		"status":   job.Status,
		"poll_url": fmt.Sprintf("/api/ingest/%s/status", job.ID),
	})
}

func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":    snap.ID,
		"page_id":   snap.PageID,
		"status":    snap.Status,
		"phase":     snap.Phase,
		"progress":  snap.Progress,
		"chunk_ids": snap.ChunkIDs,
	})
}

func (s *Server) handleBatchIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	// Per-page fields apply to a single file only.
	shared := map[string][]string{
		"space_key": r.MultipartForm.Value["space_key"],
	}

	var results []map[string]any
	for _, fh := range files {
		p, filename, err := s.pageFromUpload(fh, shared)
		if err != nil {
			results = append(results, map[string]any{
				"filename": sanitizeFilename(fh.Filename),
				"error":    err.Error(),
			})
			continue
		}

		job := pipeline.NewJob(p, filename)
		if err := s.orchestrator.Submit(job); err != nil {
			results = append(results, map[string]any{
				"filename": filename,
				"error":    err.Error(),
			})
			continue
		}

		results = append(results, map[string]any{
			"filename": filename,
			"job_id":   job.ID,
			"page_id":  job.PageID,
			"status":   job.Status,
			"poll_url": fmt.Sprintf("/api/ingest/%s/status", job.ID),
		})
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

// pageFromUpload reads one uploaded file, renders it to HTML and fills
// in page metadata from the form. page_id defaults to a content hash and
// title to the document title, then the file name.
func (s *Server) pageFromUpload(fh *multipart.FileHeader, form map[string][]string) (page.Page, string, error) {
	filename := sanitizeFilename(fh.Filename)
	if !render.IsSupportedExtension(filename) {
		return page.Page{}, filename, &uploadError{
			msg:  fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)),
			code: http.StatusBadRequest,
		}
	}

	f, err := fh.Open()
	if err != nil {
		return page.Page{}, filename, &uploadError{msg: "failed to open file", code: http.StatusInternalServerError}
	}
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxUploadBytes+1))
	f.Close()
	if err != nil {
		return page.Page{}, filename, &uploadError{msg: "failed to read file", code: http.StatusInternalServerError}
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return page.Page{}, filename, &uploadError{
			msg:  fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes),
			code: http.StatusRequestEntityTooLarge,
		}
	}

	renderer, err := render.ForFile(filename, s.cfg.RenderOptions())
	if err != nil {
		return page.Page{}, filename, &uploadError{msg: err.Error(), code: http.StatusBadRequest}
	}
	htmlDoc, err := renderer.Render(bytes.NewReader(data))
	if err != nil {
		return page.Page{}, filename, &uploadError{msg: "render failed: " + err.Error(), code: http.StatusUnprocessableEntity}
	}

	p := page.Page{
		ID:           formValue(form, "page_id"),
		Title:        formValue(form, "title"),
		SpaceKey:     formValue(form, "space_key"),
		URL:          formValue(form, "url"),
		LastModified: formValue(form, "last_modified"),
		Version:      1,
		HTML:         htmlDoc,
	}
	if p.ID == "" {
		p.ID = pipeline.ContentHashHex(data)[:16]
	}
	if p.Title == "" {
		p.Title = parser.DocumentTitle(htmlDoc)
	}
	if p.Title == "" {
		p.Title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if p.LastModified == "" {
		p.LastModified = time.Now().UTC().Format(time.RFC3339)
	}
	if v := formValue(form, "version"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Version = n
		}
	}
	return p, filename, nil
}

func formValue(form map[string][]string, key string) string {
	if vs := form[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
