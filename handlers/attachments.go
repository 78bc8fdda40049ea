package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/apex/log"

	"github.com/secnex/crm-gateway/crm"
	"github.com/secnex/crm-gateway/models"
)

// multipartMemory is how much of a multipart body is held in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// Attachments accepts a multipart form with up to crm.MaxAttachments parts
// named "file" plus caseId and subject, and uploads every file to the CRM.
func (h *Handler) Attachments(w http.ResponseWriter, r *http.Request) {
	log.Debugf("processing attachment upload from %s", r.RemoteAddr)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, models.ErrorResponse{
				Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		log.WithError(err).Warnf("invalid attachment form from %s", r.RemoteAddr)
		writeError(w, &crm.ValidationError{Message: "incomplete data or files not uploaded"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) > crm.MaxAttachments {
		writeError(w, &crm.ValidationError{Message: fmt.Sprintf("cannot upload more than %d files", crm.MaxAttachments)})
		return
	}

	files, err := readFiles(headers)
	if err != nil {
		log.WithError(err).Error("failed to read uploaded files")
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Message: "failed to read uploaded files"})
		return
	}

	upload := crm.AttachmentUpload{
		CaseID:  r.FormValue("caseId"),
		Subject: r.FormValue("subject"),
		Files:   files,
	}

	results, err := h.gateway.UploadAttachments(r.Context(), upload)
	if results != nil {
		h.record(r.Context(), upload, results)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	// An empty upstream body is reported as "" rather than null.
	bodies := make([]interface{}, len(results))
	for i, res := range results {
		bodies[i] = ""
		if len(res.Result.Body) > 0 {
			bodies[i] = embed(res.Result.Body)
		}
	}
	writeJSON(w, http.StatusOK, bodies)
}

func readFiles(headers []*multipart.FileHeader) ([]crm.AttachmentFile, error) {
	files := make([]crm.AttachmentFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
		}
		files = append(files, crm.AttachmentFile{Filename: fh.Filename, Content: content})
	}
	return files, nil
}

// record hands the batch outcome to the recorder. Failures are logged only.
func (h *Handler) record(ctx context.Context, upload crm.AttachmentUpload, results []crm.AttachmentResult) {
	if h.recorder == nil {
		return
	}

	now := time.Now().UTC()
	records := make([]models.AttachmentRecord, len(results))
	for i, res := range results {
		rec := models.AttachmentRecord{
			CaseID:    upload.CaseID,
			Subject:   upload.Subject,
			Filename:  res.Filename,
			Digest:    crm.Fingerprint(upload.Files[i].Content),
			Status:    models.StatusUploaded,
			CreatedAt: now,
		}
		if res.Err != nil {
			rec.Status = models.StatusFailed
			rec.Error = res.Err.Error()
		}
		records[i] = rec
	}

	if err := h.recorder.RecordAttachments(context.WithoutCancel(ctx), records); err != nil {
		log.WithError(err).WithField("case", upload.CaseID).Warn("failed to record attachment batch")
	}
}
