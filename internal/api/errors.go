package api

import (
	stderrors "errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/editor"
	"github.com/victornm/quizlens/internal/errors"
)

// partialCommitResponse tells the editor what the store holds after an interrupted commit, so it
// can replace its working copy and retry.
type partialCommitResponse struct {
	*errors.Error
	Options  []domain.DraftOption `json:"options"`
	Baseline []string             `json:"baseline"`
}

func bind(c *gin.Context, body any) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		abortWithError(c, errors.InvalidArgument("invalid request body: %v", err))
		return false
	}
	return true
}

func abortWithError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var partial *editor.PartialCommitError
	if stderrors.As(err, &partial) {
		slog.ErrorContext(ctx, "api: options partially committed", "step", partial.Step, "error", err)

		e := errors.New(errors.CodeAborted,
			errors.WithMessagef("options were partially committed, %s failed", partial.Step),
			errors.WithCause(err),
		)
		c.AbortWithStatusJSON(e.HTTPStatusCode(), partialCommitResponse{
			Error:    e,
			Options:  partial.Options,
			Baseline: partial.Baseline,
		})
		return
	}

	var step *editor.StepError
	if stderrors.As(err, &step) {
		slog.ErrorContext(ctx, "api: options not committed", "step", step.Step, "error", err)

		inner := errors.Convert(step.Err)
		e := errors.New(inner.Code,
			errors.WithMessagef("options were not committed, %s failed: %s", step.Step, inner.Message),
			errors.WithDetails(inner.Details...),
			errors.WithCause(err),
		)
		c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
		return
	}

	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(ctx, "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
