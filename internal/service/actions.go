package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/mapping"
	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/notify"
	"github.com/usnistgov/NEMO-custom-forms/internal/schema"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
	"github.com/usnistgov/NEMO-custom-forms/internal/workflow"
)

// ActionRequest takes the form's next action. ActionID zero means whatever
// action is next.
type ActionRequest struct {
	UserID   uint   `json:"user_id"`
	FormID   uint   `json:"form_id"`
	ActionID uint   `json:"action_id,omitempty"`
	Result   string `json:"result,omitempty"`
}

// ActionResult is the outcome of TakeAction
type ActionResult struct {
	Form     *model.Form         `json:"form"`
	Record   *model.ActionRecord `json:"record"`
	Notified int                 `json:"notified"`
}

// TakeAction records the user's action and refreshes notifications
func (s *Service) TakeAction(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	var (
		result   ActionResult
		messages []*notify.Message
	)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		messages = nil
		user, err := s.activeUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		form, err := s.loadForm(ctx, tx, req.FormID)
		if err != nil {
			return err
		}

		action := s.engine.NextAction(form)
		if req.ActionID != 0 {
			action = form.Template.ActionByID(req.ActionID)
		}
		if action == nil {
			return badRequest("this form has no pending action")
		}

		if err := s.notifier.DeleteForForm(ctx, tx, form.ID); err != nil {
			return err
		}
		record, err := s.engine.ProcessAction(ctx, tx, user, form, action, req.Result)
		if err != nil {
			return err
		}
		form.LastUpdated = s.now()
		if err := tx.SaveForm(ctx, form); err != nil {
			return err
		}

		candidates, created, err := s.notifyCandidates(ctx, tx, form)
		if err != nil {
			return err
		}
		messages = append(messages,
			notify.StatusUpdateMessage(form, action, record),
			notify.ActionRequiredMessage(form, candidates))

		result = ActionResult{Form: form, Record: record, Notified: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, msg := range messages {
		s.send(ctx, msg)
	}
	s.metrics.ActionTaken(string(result.Record.ActionType), result.Record.Result)
	return &result, nil
}

// CancelRequest cancels a form
type CancelRequest struct {
	UserID uint   `json:"user_id"`
	FormID uint   `json:"form_id"`
	Reason string `json:"reason,omitempty"`
}

// Cancel marks the form cancelled. Pending notifications are removed.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*model.Form, error) {
	var form *model.Form
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		user, err := s.activeUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if form, err = s.loadForm(ctx, tx, req.FormID); err != nil {
			return err
		}
		return s.engine.Cancel(ctx, tx, user, form, req.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.FormCancelled()
	return form, nil
}

// FormStatus summarizes a form for one user
type FormStatus struct {
	Form          *model.Form       `json:"form"`
	Template      string            `json:"template"`
	NextAction    *model.Action     `json:"next_action,omitempty"`
	Choices       []workflow.Choice `json:"choices,omitempty"`
	CanTakeAction bool              `json:"can_take_action"`
	CanEdit       bool              `json:"can_edit"`
	CanCancel     bool              `json:"can_cancel"`
	Candidates    []string          `json:"candidates,omitempty"`
	Columns       []mapping.Column  `json:"columns,omitempty"`
}

// Status reports where the form stands and what the user may do with it
func (s *Service) Status(ctx context.Context, userID, formID uint) (*FormStatus, error) {
	user, err := s.activeUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	form, err := s.loadForm(ctx, s.store, formID)
	if err != nil {
		return nil, err
	}
	if !s.engine.CanView(ctx, user, form) {
		return nil, forbidden("You are not allowed to view this form", map[string]any{"form_id": formID, "user_id": userID})
	}

	status := &FormStatus{
		Form:      form,
		Template:  form.Template.Name,
		CanEdit:   s.engine.CanEdit(ctx, user, form),
		CanCancel: s.engine.CanCancel(ctx, user, form),
	}
	if !form.Cancelled && !form.Status.Finished() {
		status.NextAction = s.engine.NextAction(form)
		status.Choices = workflow.AvailableActionChoices(status.NextAction)
		status.CanTakeAction = s.engine.CanTakeAction(ctx, user, form, status.NextAction)

		candidates, err := s.engine.NextActionCandidates(ctx, s.store, form)
		if err != nil {
			s.logger.Warn("failed to list action candidates", zap.Uint("form_id", formID), zap.Error(err))
		}
		for i := range candidates {
			status.Candidates = append(status.Candidates, candidates[i].DisplayName())
		}
	}

	answers, err := schema.Decode(form.TemplateData)
	if err != nil {
		s.logger.Warn("form has unreadable answers", zap.Uint("form_id", formID), zap.Error(err))
	} else {
		status.Columns = mapping.Row(form.Template.Columns, answers)
	}
	return status, nil
}
