// Package api exposes the editor, submission and analytics services over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizlens/internal/analytics"
	"github.com/victornm/quizlens/internal/auth"
	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/editor"
	"github.com/victornm/quizlens/internal/errors"
	"github.com/victornm/quizlens/internal/submission"
)

type Config struct {
	Router     gin.IRouter
	Auth       *auth.Verifier
	Editor     *editor.Service
	Submission *submission.Service
	Analytics  *analytics.Service
}

type API struct {
	es *editor.Service
	ss *submission.Service
	as *analytics.Service
}

func New(c Config) *API {
	a := &API{
		es: c.Editor,
		ss: c.Submission,
		as: c.Analytics,
	}

	var (
		operator   = c.Auth.Require(auth.RoleAdmin)
		respondent = c.Auth.Require("")
		r          = c.Router
	)

	// Editor
	r.GET("/quizzes", operator, a.ListQuizzes)
	r.POST("/quizzes", operator, a.CreateQuiz)
	r.GET("/quizzes/:id", operator, a.GetQuiz)
	r.PATCH("/quizzes/:id", operator, a.UpdateQuiz)
	r.GET("/quizzes/:id/questions", operator, a.ListQuestions)
	r.POST("/quizzes/:id/questions", operator, a.CreateQuestion)
	r.PATCH("/questions/:id", operator, a.UpdateQuestion)
	r.DELETE("/questions/:id", operator, a.DeleteQuestion)
	r.GET("/questions/:id/options", operator, a.LoadOptions)
	r.PUT("/questions/:id/options", operator, a.CommitOptions)

	// Respondents
	r.GET("/quizzes/:id/questionnaire", respondent, a.GetQuestionnaire)
	r.POST("/quizzes/:id/submissions", respondent, a.Submit)
	r.GET("/structures", respondent, a.ListStructures)

	// Analytics
	r.GET("/quizzes/:id/submissions", operator, a.ListSubmissions)
	r.GET("/quizzes/:id/analytics", operator, a.GetReport)
	r.GET("/quizzes/:id/dashboard", operator, a.GetDashboard)

	return a
}

func (a *API) ListQuizzes(c *gin.Context) {
	qs, err := a.es.ListQuizzes(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"quizzes": qs})
}

type createQuizBody struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
}

func (a *API) CreateQuiz(c *gin.Context) {
	var body createQuizBody
	if !bind(c, &body) {
		return
	}

	q, err := a.es.CreateQuiz(c.Request.Context(), editor.CreateQuizRequest{
		Title:       body.Title,
		Description: body.Description,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, q)
}

func (a *API) GetQuiz(c *gin.Context) {
	q, err := a.es.GetQuiz(c.Request.Context(), editor.GetQuizRequest{QuizID: c.Param("id")})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

type updateQuizBody struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Published   *bool   `json:"is_published"`
}

func (a *API) UpdateQuiz(c *gin.Context) {
	var body updateQuizBody
	if !bind(c, &body) {
		return
	}

	q, err := a.es.UpdateQuiz(c.Request.Context(), editor.UpdateQuizRequest{
		QuizID:      c.Param("id"),
		Title:       body.Title,
		Description: body.Description,
		Published:   body.Published,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) ListQuestions(c *gin.Context) {
	qs, err := a.es.ListQuestions(c.Request.Context(), editor.ListQuestionsRequest{QuizID: c.Param("id")})
	if err != nil {
		abortWithError(c, err)
		return
	}

	if qs == nil {
		qs = []domain.Question{}
	}
	c.JSON(http.StatusOK, gin.H{"questions": qs})
}

func (a *API) CreateQuestion(c *gin.Context) {
	q, err := a.es.CreateQuestion(c.Request.Context(), editor.CreateQuestionRequest{QuizID: c.Param("id")})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, q)
}

type updateQuestionBody struct {
	Label    *string       `json:"label"`
	QType    *domain.QType `json:"qtype"`
	Required *bool         `json:"required"`
}

func (a *API) UpdateQuestion(c *gin.Context) {
	var body updateQuestionBody
	if !bind(c, &body) {
		return
	}

	q, err := a.es.UpdateQuestion(c.Request.Context(), editor.UpdateQuestionRequest{
		QuestionID: c.Param("id"),
		Label:      body.Label,
		QType:      body.QType,
		Required:   body.Required,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, q)
}

func (a *API) DeleteQuestion(c *gin.Context) {
	if err := a.es.DeleteQuestion(c.Request.Context(), editor.DeleteQuestionRequest{QuestionID: c.Param("id")}); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) LoadOptions(c *gin.Context) {
	set, err := a.es.LoadOptions(c.Request.Context(), editor.LoadOptionsRequest{QuestionID: c.Param("id")})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, set)
}

// commitOptionsBody is the editor's working copy. Label and qtype are the unsaved values the
// draft is validated against.
type commitOptionsBody struct {
	Label    *string              `json:"label"`
	QType    *domain.QType        `json:"qtype"`
	Options  []domain.DraftOption `json:"options"`
	Baseline []string             `json:"baseline"`
}

func (a *API) CommitOptions(c *gin.Context) {
	var body commitOptionsBody
	if !bind(c, &body) {
		return
	}

	set, err := a.es.CommitOptions(c.Request.Context(), editor.CommitOptionsRequest{
		QuestionID: c.Param("id"),
		Label:      body.Label,
		QType:      body.QType,
		Options:    body.Options,
		Baseline:   body.Baseline,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, set)
}

// GetQuestionnaire serves a published quiz to respondents. Operators also get drafts.
func (a *API) GetQuestionnaire(c *gin.Context) {
	qn, err := a.ss.GetQuestionnaire(c.Request.Context(), submission.GetQuestionnaireRequest{
		QuizID: c.Param("id"),
		Drafts: auth.Role(c) == auth.RoleAdmin,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, qn)
}

type submitBody struct {
	UserID    string              `json:"user_id"`
	Structure string              `json:"structure"`
	Answers   []submission.Answer `json:"answers"`
}

// Submit records a questionnaire. An authenticated respondent always submits as the token
// subject.
func (a *API) Submit(c *gin.Context) {
	var body submitBody
	if !bind(c, &body) {
		return
	}

	user := body.UserID
	if sub := auth.Subject(c); sub != "" {
		user = sub
	}

	s, err := a.ss.Submit(c.Request.Context(), submission.SubmitRequest{
		QuizID:    c.Param("id"),
		UserID:    user,
		Structure: body.Structure,
		Answers:   body.Answers,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s)
}

func (a *API) ListSubmissions(c *gin.Context) {
	subs, err := a.ss.ListSubmissions(c.Request.Context(), submission.ListSubmissionsRequest{QuizID: c.Param("id")})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"submissions": subs})
}

func (a *API) ListStructures(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"structures": a.as.Structures()})
}

func (a *API) GetReport(c *gin.Context) {
	var limit int
	if raw := c.Query("text_limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			abortWithError(c, errors.InvalidArgument("text_limit must be an integer, got %q", raw))
			return
		}
		limit = n
	}

	r, err := a.as.Report(c.Request.Context(), analytics.ReportRequest{
		QuizID:    c.Param("id"),
		Structure: c.Query("structure"),
		TextLimit: limit,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, r)
}

func (a *API) GetDashboard(c *gin.Context) {
	d, err := a.as.Dashboard(c.Request.Context(), analytics.DashboardRequest{
		QuizID:    c.Param("id"),
		Structure: c.Query("structure"),
		From:      c.Query("from"),
		To:        c.Query("to"),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, d)
}
