package web

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gaze/pkg/errlog"
	"github.com/teslashibe/go-gaze/pkg/report"
)

// SessionStore is the part of errlog.Store the dashboard reads.
type SessionStore interface {
	Sessions() ([]errlog.Session, error)
	Errors(sessionID string) ([]float64, error)
}

// SetStore enables the accuracy test session endpoints. Call it before
// serving.
func (s *Server) SetStore(store SessionStore) {
	s.store = store
}

func (s *Server) registerSessionRoutes(app *fiber.App) {
	app.Get("/api/sessions", s.handleSessions)
	app.Get("/api/sessions/:id", s.handleSession)
	app.Get("/charts/sessions/:id", s.handleSessionChart)
}

// handleSessions lists recorded test runs
func (s *Server) handleSessions(c *fiber.Ctx) error {
	if s.store == nil {
		return fiber.NewError(fiber.StatusNotFound, "no error store configured")
	}
	sessions, err := s.store.Sessions()
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []errlog.Session{}
	}
	return c.JSON(sessions)
}

// handleSession returns the error summary and histogram of one run
func (s *Server) handleSession(c *fiber.Ctx) error {
	errs, err := s.sessionErrors(c.Params("id"))
	if err != nil {
		return err
	}
	summary, err := report.Summarize(errs)
	if err != nil {
		return err
	}
	bins, err := report.Histogram(errs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"id":        c.Params("id"),
		"summary":   summary,
		"histogram": bins,
	})
}

// handleSessionChart renders the run's error histogram as HTML
func (s *Server) handleSessionChart(c *fiber.Ctx) error {
	id := c.Params("id")
	errs, err := s.sessionErrors(id)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.ChartHistogram(&buf, errs, "Gaze error: session "+id); err != nil {
		return err
	}
	c.Type("html")
	return c.Send(buf.Bytes())
}

func (s *Server) sessionErrors(id string) ([]float64, error) {
	if s.store == nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "no error store configured")
	}
	errs, err := s.store.Errors(id)
	if err != nil {
		return nil, err
	}
	if len(errs) == 0 {
		return nil, fiber.NewError(fiber.StatusNotFound, "no errors recorded for session "+id)
	}
	return errs, nil
}

