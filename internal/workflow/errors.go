package workflow

import (
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
)

// Text codes of workflow errors
const (
	CodeNotNextAction     = "NOT_NEXT_ACTION"
	CodeNotAllowed        = "NOT_ALLOWED"
	CodeFormCancelled     = "FORM_CANCELLED"
	CodeFormFinished      = "FORM_FINISHED"
	CodeFormNumberMissing = "FORM_NUMBER_MISSING"
)

func errNotNextAction(form *model.Form, action *model.Action) error {
	meta := map[string]any{"form_id": form.ID}
	if action != nil {
		meta["action_rank"] = action.Rank
	}
	return apperrors.New("This action/rank has already been taken or is not next for this form", apperrors.CategoryAuthz).
		WithTextCode(CodeNotNextAction).
		WithMetadata(meta)
}

func errNotAllowed(form *model.Form, user *model.User) error {
	meta := map[string]any{"form_id": form.ID}
	if user != nil {
		meta["user_id"] = user.ID
	}
	return apperrors.New("You are not allowed to take this action on this form", apperrors.CategoryAuthz).
		WithTextCode(CodeNotAllowed).
		WithMetadata(meta)
}

func errCancelled(form *model.Form) error {
	return apperrors.New("This form was cancelled and no further actions can be taken on it", apperrors.CategoryValidation).
		WithTextCode(CodeFormCancelled).
		WithMetadata(map[string]any{"form_id": form.ID})
}

func errFinished(form *model.Form) error {
	msg := fmt.Sprintf("This form has already been %s", strings.ToLower(string(form.Status)))
	return apperrors.New(msg, apperrors.CategoryValidation).
		WithTextCode(CodeFormFinished).
		WithMetadata(map[string]any{"form_id": form.ID, "status": form.Status})
}

func errNumberMissing(form *model.Form) error {
	return apperrors.NewValidation("A form number must be set before this action can be taken",
		apperrors.FieldError{Field: "form_number", Message: "This field is required"}).
		WithTextCode(CodeFormNumberMissing).
		WithMetadata(map[string]any{"form_id": form.ID})
}

// IsAuthorization reports whether err rejects an operation for ordering or
// permission reasons
func IsAuthorization(err error) bool {
	return apperrors.HasCategory(err, apperrors.CategoryAuthz)
}

// HasCode reports whether err carries the given workflow text code
func HasCode(err error, code string) bool {
	var e *apperrors.Error
	if !apperrors.As(err, &e) {
		return false
	}
	return e.TextCode == code
}
