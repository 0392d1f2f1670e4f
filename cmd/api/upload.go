package main

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mailaudit/internal/apperr"
	"mailaudit/internal/queue"
)

const (
	maxUploadBytes = 10 << 20
	maxBulkEmails  = 50000
)

type UploadResponse struct {
	JobID     string `json:"job_id"`
	TotalRows int    `json:"total_rows"`
	Message   string `json:"message"`
}

// upload accepts a CSV file (first column is the address) or a JSON
// {"emails": [...]} body, creates a job and queues one task per address.
func (s *server) upload(c *gin.Context) {
	if s.store == nil || s.queue == nil {
		unavailable(c, "Bulk validation")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	var (
		emails []string
		err    error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		emails, err = emailsFromForm(c)
	} else {
		var body struct {
			Emails []string `json:"emails"`
		}
		if err = c.ShouldBindJSON(&body); err != nil {
			err = apperr.Invalid("Invalid request body: %v", err)
		}
		emails = cleanEmails(body.Emails)
	}
	if err != nil {
		fail(c, err)
		return
	}
	if len(emails) == 0 {
		fail(c, apperr.Invalid("No email addresses provided"))
		return
	}
	if len(emails) > maxBulkEmails {
		fail(c, apperr.Invalid("Too many email addresses: %d (max %d)", len(emails), maxBulkEmails))
		return
	}

	ctx := c.Request.Context()
	job, err := s.store.CreateJob(ctx, len(emails))
	if err != nil {
		fail(c, err)
		return
	}

	tasks := make([]queue.Task, len(emails))
	for i, e := range emails {
		tasks[i] = queue.Task{JobID: job.ID, Email: e}
	}
	if err := s.queue.Enqueue(ctx, tasks...); err != nil {
		fail(c, apperr.Wrap(apperr.UpstreamUnavailable, "Failed to queue job", err))
		return
	}

	log.Info().Str("job_id", job.ID).Int("emails", len(emails)).Msg("📥 Bulk job queued")
	c.JSON(http.StatusOK, UploadResponse{
		JobID:     job.ID,
		TotalRows: len(emails),
		Message:   "Job created successfully. Processing started.",
	})
}

func emailsFromForm(c *gin.Context) ([]string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, apperr.Invalid("Missing 'file' parameter in form data")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.InputInvalid, "File too large or malformed", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var emails []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.InputInvalid, "Invalid CSV format", err)
		}
		if len(record) > 0 {
			emails = append(emails, record[0])
		}
	}

	emails = cleanEmails(emails)
	// A header row is skipped.
	if len(emails) > 0 && strings.EqualFold(emails[0], "email") {
		emails = emails[1:]
	}
	return emails, nil
}

func cleanEmails(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
