package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/wwwzy/PumpCPQ/internal/agent"
)

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Sessions: s.SessionCount()}
	if s.health != nil {
		if err := s.health(c.Request().Context()); err != nil {
			resp.Status = "degraded"
			resp.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			s.logger.Warn("invalid create session request", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	a, err := s.factory(req.Customer.toModel())
	if err != nil {
		s.logger.Error("failed to create agent", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create session")
	}
	sess := &session{agent: a}

	// 新会话还没有注册，不需要持锁
	reply, err := a.Step(c.Request().Context(), nil)
	if err != nil {
		return s.stepError(a.SessionID(), err)
	}
	s.add(sess)
	return c.JSON(http.StatusCreated, replyResponse(a, reply))
}

func (s *Server) handleStep(c echo.Context) error {
	sess, err := s.lookup(c.Param("id"))
	if err != nil {
		return err
	}
	var req StepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	reply, err := sess.agent.Step(c.Request().Context(), req.Text)
	if err != nil {
		return s.stepError(sess.agent.SessionID(), err)
	}
	return c.JSON(http.StatusOK, replyResponse(sess.agent, reply))
}

// handleApproval 不获取会话锁：Step 可能正阻塞在等待审批上。
func (s *Server) handleApproval(c echo.Context) error {
	sess, err := s.lookup(c.Param("id"))
	if err != nil {
		return err
	}
	var req ApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err = sess.agent.Approve(agent.Decision{Approved: req.Approved, Note: req.Note})
	switch {
	case err == nil:
		return c.NoContent(http.StatusAccepted)
	case errors.Is(err, agent.ErrSessionComplete), errors.Is(err, agent.ErrApprovalPending),
		errors.Is(err, agent.ErrNoApprovalPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	}
}

func (s *Server) handleGetSession(c echo.Context) error {
	sess, err := s.lookup(c.Param("id"))
	if err != nil {
		return err
	}
	sess.mu.Lock()
	st := sess.agent.State()
	sess.mu.Unlock()
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleCanvas(c echo.Context) error {
	sess, err := s.lookup(c.Param("id"))
	if err != nil {
		return err
	}
	sess.mu.Lock()
	canvas, ok := sess.agent.Canvas()
	sess.mu.Unlock()
	if !ok {
		return echo.NewHTTPError(http.StatusConflict, "quote is not complete yet")
	}
	return c.JSON(http.StatusOK, canvas)
}

func (s *Server) handleDeleteSession(c echo.Context) error {
	if !s.remove(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) stepError(sessionID string, err error) error {
	s.logger.Error("step failed", zap.String("session_id", sessionID), zap.Error(err))
	if errors.Is(err, agent.ErrQuestionGeneration) {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func replyResponse(a *agent.Agent, r agent.Reply) ReplyResponse {
	st := a.State()
	return ReplyResponse{
		SessionID: a.SessionID(),
		Reply:     r.Text,
		Done:      r.Done,
		Phase:     st.Phase,
		Asked:     st.Asked,
	}
}
