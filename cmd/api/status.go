package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailaudit/internal/apperr"
)

func (s *server) jobStatus(c *gin.Context) {
	if s.store == nil {
		unavailable(c, "Bulk validation")
		return
	}
	id := c.Query("id")
	if id == "" {
		fail(c, apperr.Invalid("Missing 'id' parameter"))
		return
	}

	job, err := s.store.GetJob(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}
