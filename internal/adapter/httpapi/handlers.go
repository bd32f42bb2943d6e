package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"redditstudy/internal/study"
)

const pingTimeout = 2 * time.Second

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Storage string `json:"storage"`
	Study   bool   `json:"study_running"`
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := healthResponse{
		Status:  "ok",
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
		Storage: "unchecked",
		Study:   s.progress().Running,
	}
	status := http.StatusOK
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.Warn("storage ping failed", "error", err)
			resp.Status, resp.Storage = "unavailable", err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.Storage = "ok"
		}
	}
	c.JSON(status, resp)
}

type listQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type listResponse struct {
	Studies []study.Study `json:"studies"`
}

func (s *Server) handleListStudies(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.respondError(c, bindError(err))
		return
	}
	studies, err := s.store.ListStudies(c.Request.Context(), q.Limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if studies == nil {
		studies = []study.Study{}
	}
	c.JSON(http.StatusOK, listResponse{Studies: studies})
}

type studyResponse struct {
	Study     study.Study    `json:"study"`
	Snapshots int            `json:"snapshots"`
	Samples   []study.Sample `json:"samples"`
}

func (s *Server) handleGetStudy(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	st, err := s.store.GetStudy(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	n, err := s.store.CountSnapshots(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	samples, err := s.store.ListSamples(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if samples == nil {
		samples = []study.Sample{}
	}
	c.JSON(http.StatusOK, studyResponse{Study: st, Snapshots: n, Samples: samples})
}

func (s *Server) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, s.progress())
}
