package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/conorfennell/examprep/internal/domain"
	"github.com/conorfennell/examprep/internal/marathon"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 100
)

type startSessionRequest struct {
	TopicIDs  []string `json:"topic_ids"`
	SubjectID string   `json:"subject_id"`
}

type submitAnswerRequest struct {
	ItemID           string `json:"item_id" binding:"required"`
	QuestionID       string `json:"question_id" binding:"required"`
	SelectedOption   *int   `json:"selected_option" binding:"required"`
	TimeTakenSeconds int    `json:"time_taken_seconds"`
}

// questionView is a question as shown to the learner, without its answer.
type questionView struct {
	ID      string   `json:"id"`
	TopicID string   `json:"topic_id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

type nextResponse struct {
	Completed   bool              `json:"completed"`
	AllMastered bool              `json:"all_mastered"`
	Pending     int               `json:"pending"`
	Item        *domain.QueueItem `json:"item,omitempty"`
	Question    *questionView     `json:"question,omitempty"`
}

// handleStartSession creates a session over the requested topics.
func (s *Server) handleStartSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req startSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		sess, err := s.deps.Marathon.StartSession(c.Request.Context(), c.GetString(userKey), req.TopicIDs, req.SubjectID)
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		c.JSON(http.StatusCreated, sess)
	}
}

// handleListSessions lists the caller's sessions, newest first.
func (s *Server) handleListSessions() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultSessionLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				respondError(c, http.StatusBadRequest, "invalid_request", errors.New("limit must be a positive integer"))
				return
			}
			limit = min(n, maxSessionLimit)
		}
		sessions, err := s.deps.Sessions.ListByUser(c.Request.Context(), c.GetString(userKey), limit)
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		if sessions == nil {
			sessions = []domain.Session{}
		}
		respondOK(c, gin.H{"sessions": sessions})
	}
}

func (s *Server) handleGetSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.ownedSession(c)
		if !ok {
			return
		}
		respondOK(c, sess)
	}
}

// handleNextQuestion serves the next question of a session.
func (s *Server) handleNextQuestion() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.ownedSession(c)
		if !ok {
			return
		}
		res, err := s.deps.Marathon.NextQuestion(c.Request.Context(), sess.ID)
		if err != nil {
			s.respondFailure(c, err)
			return
		}

		out := nextResponse{
			Completed:   res.Completed,
			AllMastered: res.AllMastered,
			Pending:     res.Pending,
			Item:        res.Item,
		}
		if res.Item != nil {
			q, err := s.deps.Questions.Get(c.Request.Context(), res.Item.QuestionID)
			if err != nil {
				s.respondFailure(c, err)
				return
			}
			if q == nil {
				s.respondFailure(c, marathon.ErrNotFound)
				return
			}
			out.Question = &questionView{ID: q.ID, TopicID: q.TopicID, Prompt: q.Prompt, Options: q.Options}
		}
		respondOK(c, out)
	}
}

// handleSubmitAnswer grades an answer. An Idempotency-Key header makes
// retries of the same submission safe.
func (s *Server) handleSubmitAnswer() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.ownedSession(c)
		if !ok {
			return
		}
		var req submitAnswerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		res, err := s.deps.Marathon.SubmitAnswer(c.Request.Context(), marathon.AnswerInput{
			SessionID:        sess.ID,
			ItemID:           req.ItemID,
			QuestionID:       req.QuestionID,
			SelectedOption:   *req.SelectedOption,
			TimeTakenSeconds: req.TimeTakenSeconds,
			SubmissionID:     c.GetHeader(idempotencyHeader),
		})
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		respondOK(c, res)
	}
}

func (s *Server) handleExitSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.ownedSession(c)
		if !ok {
			return
		}
		exited, err := s.deps.Marathon.ExitSession(c.Request.Context(), sess.ID)
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		respondOK(c, exited)
	}
}

func (s *Server) handleGetSummary() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.ownedSession(c)
		if !ok {
			return
		}
		summary, err := s.deps.Marathon.GetSummary(c.Request.Context(), sess.ID)
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		respondOK(c, summary)
	}
}

// handleListTopics lists topics with active questions.
func (s *Server) handleListTopics() gin.HandlerFunc {
	return func(c *gin.Context) {
		topics, err := s.deps.Questions.ListTopics(c.Request.Context())
		if err != nil {
			s.respondFailure(c, err)
			return
		}
		if topics == nil {
			topics = []domain.Topic{}
		}
		respondOK(c, gin.H{"topics": topics})
	}
}

// ownedSession loads the :id session and writes a 404 unless it belongs to
// the caller, so other users' sessions are indistinguishable from missing ones.
func (s *Server) ownedSession(c *gin.Context) (*domain.Session, bool) {
	sess, err := s.deps.Marathon.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondFailure(c, err)
		return nil, false
	}
	if sess.UserID != c.GetString(userKey) {
		s.respondFailure(c, marathon.ErrSessionNotFound)
		return nil, false
	}
	return sess, true
}
