package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
)

// ReportResponse is the JSON form of a periodic report.
type ReportResponse struct {
	Direction  string    `json:"direction"`
	Time       time.Time `json:"time"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	SampleRate int       `json:"sample_rate"`
	Callbacks  uint64    `json:"callbacks"`
	Samples    uint64    `json:"samples"`
	Rate       int       `json:"rate"`
	Level      int16     `json:"level"`
	Line       string    `json:"line"`
}

func newReportResponse(r audiocore.Report) ReportResponse {
	return ReportResponse{
		Direction:  r.Direction.String(),
		Time:       r.Time,
		ElapsedMs:  r.Elapsed.Milliseconds(),
		SampleRate: r.SampleRate,
		Callbacks:  r.Callbacks,
		Samples:    r.Samples,
		Rate:       r.Rate,
		Level:      r.Level,
		Line:       r.String(),
	}
}

// ErrorResponse is returned for failed API requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.status != nil && s.status.Status().Closed {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "closed"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	if s.status == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "device buffer not available"})
	}
	return c.JSON(http.StatusOK, s.status.Status())
}

func (s *Server) handleReports(c echo.Context) error {
	if s.reports == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "report store not available"})
	}
	var dir *audiocore.Direction
	if q := c.QueryParam("direction"); q != "" {
		d, ok := parseDirection(q)
		if !ok {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "direction must be record or playout"})
		}
		dir = &d
	}
	reports := s.reports.Recent(dir)
	out := make([]ReportResponse, len(reports))
	for i, r := range reports {
		out[i] = newReportResponse(r)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleLatestReports(c echo.Context) error {
	if s.reports == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "report store not available"})
	}
	out := make(map[string]ReportResponse, 2)
	for _, d := range []audiocore.Direction{audiocore.DirectionRecord, audiocore.DirectionPlayout} {
		if r, ok := s.reports.Latest(d); ok {
			out[d.String()] = newReportResponse(r)
		}
	}
	return c.JSON(http.StatusOK, out)
}

func parseDirection(s string) (audiocore.Direction, bool) {
	switch s {
	case audiocore.DirectionRecord.String():
		return audiocore.DirectionRecord, true
	case audiocore.DirectionPlayout.String():
		return audiocore.DirectionPlayout, true
	}
	return 0, false
}
