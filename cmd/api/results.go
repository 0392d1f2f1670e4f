package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailaudit/internal/apperr"
)

// jobResults lists a job's results in the order the worker saved them; an
// unfinished job returns what is done so far.
func (s *server) jobResults(c *gin.Context) {
	if s.store == nil {
		unavailable(c, "Bulk validation")
		return
	}
	id := c.Query("id")
	if id == "" {
		fail(c, apperr.Invalid("Missing 'id' parameter"))
		return
	}

	ctx := c.Request.Context()
	if _, err := s.store.GetJob(ctx, id); err != nil {
		fail(c, err)
		return
	}
	results, err := s.store.JobResults(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
