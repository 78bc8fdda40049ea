package crm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"github.com/secnex/crm-gateway/metrics"
	"github.com/secnex/crm-gateway/models"
)

// MaxAttachments is the largest batch accepted by UploadAttachments.
const MaxAttachments = 10

type AttachmentFile struct {
	Filename string
	Content  []byte
}

type AttachmentUpload struct {
	CaseID  string
	Subject string
	Files   []AttachmentFile
}

// AttachmentResult is the outcome of one file. Exactly one of Result and Err
// is set once the batch has finished.
type AttachmentResult struct {
	Filename string
	Result   *Result
	Err      error
}

// Validate checks the batch before any token or upstream call is made.
func (u AttachmentUpload) Validate() error {
	if len(u.Files) == 0 || u.CaseID == "" || u.Subject == "" {
		return &ValidationError{Message: "incomplete data or files not uploaded"}
	}
	if len(u.Files) > MaxAttachments {
		return &ValidationError{Message: fmt.Sprintf("cannot upload more than %d files", MaxAttachments)}
	}
	return nil
}

// UploadAttachments sends every file of the batch to the CRM concurrently,
// sharing one token. Results come back in input order. When any upload fails
// the error is a *PartialUploadError; the other uploads still run to
// completion and are not rolled back.
func (c *Client) UploadAttachments(ctx context.Context, upload AttachmentUpload) ([]AttachmentResult, error) {
	if err := upload.Validate(); err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	path, err := RouteAttachment.Expand(nil)
	if err != nil {
		return nil, err
	}

	results := make([]AttachmentResult, len(upload.Files))
	var g errgroup.Group
	for i, file := range upload.Files {
		results[i].Filename = file.Filename
		g.Go(func() error {
			payload, err := json.Marshal(models.AttachmentPayload{
				EntityID: upload.CaseID,
				Subject:  upload.Subject,
				Filename: file.Filename,
				Data:     base64.StdEncoding.EncodeToString(file.Content),
			})
			if err != nil {
				results[i].Err = err
				return err
			}

			res, err := c.do(ctx, token, RouteAttachment, path, payload)
			metrics.IncrementAttachment(err == nil)
			if err != nil {
				results[i].Err = fmt.Errorf("%s: %w", file.Filename, err)
				return results[i].Err
			}
			results[i].Result = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithFields(log.Fields{
			"case":  upload.CaseID,
			"files": len(upload.Files),
		}).WithError(err).Error("attachment batch failed")
		return results, &PartialUploadError{Err: err, Results: results}
	}

	log.WithFields(log.Fields{
		"case":  upload.CaseID,
		"files": len(upload.Files),
	}).Info("attachments uploaded")
	return results, nil
}
