package graph

import (
	"context"
	"errors"
	"net/http"

	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/wizard"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"
)

type inputError struct{ msg string }

func (e *inputError) Error() string       { return "graph: " + e.msg }
func (e *inputError) Kind() string        { return apperr.KindValidation }
func (e *inputError) UserMessage() string { return e.msg }

var (
	errBadInput      = &inputError{"Invalid request input."}
	errIntrospection = &inputError{"Introspection is disabled."}
)

// presentError renders resolver errors through the same taxonomy as the REST
// routes. Parse and validation errors pass through untouched.
func presentError(ctx context.Context, err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) && gqlErr.Unwrap() == nil {
		return gqlErr
	}

	out := graphql.DefaultErrorPresenter(ctx, err)
	kind := apperr.Kind(err)
	out.Message = apperr.UserMessage(err)
	out.Extensions = map[string]any{"kind": kind}

	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		out.Extensions["fields"] = verr.Fields
	}

	log := logger.FromCtx(ctx).With(
		zap.String("path", out.Path.String()),
		zap.String("kind", kind),
		zap.Error(err),
	)
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Error("graphql field failed")
	} else {
		log.Info("graphql field rejected")
	}
	return out
}

func recoverPanic(ctx context.Context, p any) error {
	logger.FromCtx(ctx).Error("graphql resolver panic", zap.Any("panic", p), zap.Stack("stack"))
	return errors.New("internal server error")
}
