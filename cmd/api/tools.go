package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mailaudit/internal/headers"
	"mailaudit/internal/spf"
	"mailaudit/internal/validator"
)

type domainRequest struct {
	Domain string `json:"domain"`
}

// domain binds a {"domain"} body and normalizes it. Invalid input never
// reaches the network.
func domain(c *gin.Context) (string, bool) {
	var req domainRequest
	if !bind(c, &req) {
		return "", false
	}
	d, err := validator.NormalizeDomain(req.Domain)
	if err != nil {
		fail(c, err)
		return "", false
	}
	return d, true
}

func (s *server) checkSPF(c *gin.Context) {
	d, ok := domain(c)
	if !ok {
		return
	}
	res, err := s.spf.Check(c.Request.Context(), d)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) checkDMARC(c *gin.Context) {
	d, ok := domain(c)
	if !ok {
		return
	}
	res, err := s.dmarc.Check(c.Request.Context(), d)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) checkDNS(c *gin.Context) {
	d, ok := domain(c)
	if !ok {
		return
	}
	res, err := s.dns.Snapshot(c.Request.Context(), d)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) checkDNSRecord(c *gin.Context) {
	var req struct {
		Domain     string `json:"domain"`
		RecordType string `json:"record_type"`
	}
	if !bind(c, &req) {
		return
	}
	d, err := validator.NormalizeDomain(req.Domain)
	if err != nil {
		fail(c, err)
		return
	}
	if req.RecordType == "" {
		req.RecordType = "A"
	}
	res, err := s.dns.QueryRecord(c.Request.Context(), d, req.RecordType)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) checkTXT(c *gin.Context) {
	d, ok := domain(c)
	if !ok {
		return
	}
	res, err := s.txt.Check(c.Request.Context(), d)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) checkBlacklist(c *gin.Context) {
	var req struct {
		Domain string `json:"domain"`
		IP     string `json:"ip"`
		Target string `json:"ip_or_domain"`
	}
	if !bind(c, &req) {
		return
	}
	target := req.Target
	if target == "" {
		target = req.IP
	}
	if target == "" {
		target = req.Domain
	}
	res, err := s.blacklist.Check(c.Request.Context(), target)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) analyzeHeaders(c *gin.Context) {
	var req struct {
		RawHeaders string `json:"raw_headers"`
	}
	if !bind(c, &req) {
		return
	}
	c.JSON(http.StatusOK, headers.Analyze(req.RawHeaders))
}

func (s *server) checkPhishing(c *gin.Context) {
	var req struct {
		URL string `json:"url"`
	}
	if !bind(c, &req) {
		return
	}
	res, err := s.phishing.Check(req.URL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) generateSPF(c *gin.Context) {
	var req spf.GenerateRequest
	if !bind(c, &req) {
		return
	}
	res, err := spf.Generate(req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
