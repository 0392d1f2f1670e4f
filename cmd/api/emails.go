package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mailaudit/internal/apperr"
)

type checkEmailRequest struct {
	Email     string `json:"email"`
	CheckSMTP *bool  `json:"check_smtp"`
}

func (s *server) checkEmail(c *gin.Context) {
	var req checkEmailRequest
	if !bind(c, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		fail(c, apperr.Invalid("email is required"))
		return
	}
	checkSMTP := req.CheckSMTP == nil || *req.CheckSMTP

	ctx := c.Request.Context()
	res, err := s.validator.Validate(ctx, email, checkSMTP)
	if err != nil {
		fail(c, err)
		return
	}

	if s.store != nil {
		if err := s.store.SaveValidation(ctx, res, c.ClientIP()); err != nil {
			log.Warn().Err(err).Str("email", email).Msg("⚠️  Failed to record validation")
		}
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) history(c *gin.Context) {
	if s.store == nil {
		unavailable(c, "Validation history")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, apperr.Invalid("limit must be an integer"))
			return
		}
		limit = n
	}

	records, err := s.store.History(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *server) stats(c *gin.Context) {
	if s.store == nil {
		unavailable(c, "Validation history")
		return
	}
	st, err := s.store.Stats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
