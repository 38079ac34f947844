package service

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/notify"
	"github.com/usnistgov/NEMO-custom-forms/internal/numbering"
	"github.com/usnistgov/NEMO-custom-forms/internal/schema"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

// DocumentUpload is a supplementary document attached on submission. Either
// Data or URL must be set.
type DocumentUpload struct {
	Name           string `json:"name"`
	Data           []byte `json:"-"`
	URL            string `json:"url,omitempty"`
	DocumentTypeID *uint  `json:"document_type_id,omitempty"`
	DisplayOrder   int    `json:"display_order"`
}

// SubmitRequest creates a form (FormID zero) or edits an existing one. An
// ActionID takes that action in the same transaction.
type SubmitRequest struct {
	UserID             uint                `json:"user_id"`
	TemplateID         uint                `json:"template_id,omitempty"`
	FormID             uint                `json:"form_id,omitempty"`
	Answers            map[string][]string `json:"answers,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	FormNumber         string              `json:"form_number,omitempty"`
	AutoGenerateNumber bool                `json:"auto_generate_number,omitempty"`
	Documents          []DocumentUpload    `json:"documents,omitempty"`
	RemoveDocuments    []uint              `json:"remove_documents,omitempty"`
	ActionID           uint                `json:"action_id,omitempty"`
	ActionResult       string              `json:"action_result,omitempty"`
}

// SubmitResult describes the saved form
type SubmitResult struct {
	Form     *model.Form         `json:"form"`
	Created  bool                `json:"created"`
	Record   *model.ActionRecord `json:"record,omitempty"`
	Notified int                 `json:"notified"`
}

// Submit validates and saves a submission. Number generation, the form, its
// documents, the optional action and notifications are committed together.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	var (
		result   SubmitResult
		stored   []string
		removed  []string
		messages []*notify.Message
	)

	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		stored, removed, messages = nil, nil, nil

		user, err := s.activeUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		form, err := s.submissionForm(ctx, tx, user, req)
		if err != nil {
			return err
		}
		tpl := form.Template
		edit := form.Persisted()

		var action *model.Action
		if req.ActionID != 0 {
			if action = tpl.ActionByID(req.ActionID); action == nil {
				return apperrors.New(fmt.Sprintf("action %d not found", req.ActionID), apperrors.CategoryNotFound).
					WithMetadata(map[string]any{"template_id": tpl.ID, "action_id": req.ActionID})
			}
		}

		canEdit := !edit || s.engine.CanEdit(ctx, user, form)
		actionOnly := action != nil && s.engine.CanTakeNextAction(ctx, user, form) && !canEdit
		if edit && !canEdit && !actionOnly {
			return editForbidden(form, user)
		}

		if canEdit {
			fields, err := schema.ParseFields(tpl.FormFields)
			if err != nil {
				return err
			}
			answers, err := schema.Extract(fields, req.Answers)
			if err != nil {
				return err
			}
			if form.TemplateData, err = answers.Encode(); err != nil {
				return apperrors.Wrap(err, apperrors.CategoryInternal, "failed to encode answers")
			}
			form.Notes = strings.TrimSpace(req.Notes)
			form.LastUpdatedByID = user.ID
		}
		form.LastUpdated = s.now()

		numbered, err := s.assignNumber(ctx, tx, user, form, req)
		if err != nil {
			return err
		}

		if canEdit || numbered {
			if err := tx.SaveForm(ctx, form); err != nil {
				return err
			}
			if canEdit {
				if stored, err = s.attachDocuments(ctx, tx, form, req.Documents); err != nil {
					return err
				}
				if removed, err = s.removeDocuments(ctx, tx, form, req.RemoveDocuments); err != nil {
					return err
				}
			}
		}

		if action != nil {
			if err := s.notifier.DeleteForForm(ctx, tx, form.ID); err != nil {
				return err
			}
			record, err := s.engine.ProcessAction(ctx, tx, user, form, action, req.ActionResult)
			if err != nil {
				return err
			}
			result.Record = record
			messages = append(messages, notify.StatusUpdateMessage(form, action, record))
		}

		candidates, created, err := s.notifyCandidates(ctx, tx, form)
		if err != nil {
			return err
		}
		if !edit {
			messages = append(messages, notify.ReceivedMessage(form))
		}
		messages = append(messages, notify.ActionRequiredMessage(form, candidates))

		result.Form = form
		result.Created = !edit
		result.Notified = created
		return nil
	})
	if err != nil {
		if len(stored) > 0 {
			if cleanupErr := s.documents.Delete(stored...); cleanupErr != nil {
				s.logger.Warn("failed to remove documents of a rolled back submission", zap.Error(cleanupErr))
			}
		}
		return nil, err
	}

	if len(removed) > 0 {
		if err := s.documents.Delete(removed...); err != nil {
			s.logger.Warn("failed to delete removed documents", zap.Error(err))
		}
	}
	for _, msg := range messages {
		s.send(ctx, msg)
	}

	s.metrics.FormSubmitted(result.Created)
	if result.Record != nil {
		s.metrics.ActionTaken(string(result.Record.ActionType), result.Record.Result)
	}
	s.logger.Info("form submitted",
		zap.Uint("form_id", result.Form.ID),
		zap.Uint("user_id", req.UserID),
		zap.Bool("created", result.Created),
		zap.String("status", string(result.Form.Status)))
	return &result, nil
}

// submissionForm returns the existing form being edited, or a new pending
// form for a template the user may create
func (s *Service) submissionForm(ctx context.Context, tx store.Tx, user *model.User, req SubmitRequest) (*model.Form, error) {
	if req.FormID != 0 {
		return s.loadForm(ctx, tx, req.FormID)
	}
	if req.ActionID != 0 {
		return nil, badRequest("actions can only be taken on existing forms")
	}
	tpl, err := tx.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.Enabled {
		return nil, apperrors.New(fmt.Sprintf("template %q is disabled", tpl.Name), apperrors.CategoryAuthz).
			WithTextCode(CodeTemplateDisabled)
	}
	if !s.engine.CanCreate(ctx, user, tpl) {
		return nil, forbidden("You are not allowed to create forms for this template",
			map[string]any{"template_id": tpl.ID, "user_id": user.ID})
	}
	now := s.now()
	return &model.Form{
		CreatedAt:       now,
		CreatorID:       user.ID,
		Creator:         user,
		LastUpdated:     now,
		LastUpdatedByID: user.ID,
		Status:          model.StatusPending,
		TemplateID:      tpl.ID,
		Template:        tpl,
	}, nil
}

func editForbidden(form *model.Form, user *model.User) error {
	msg := "You are not allowed to edit this form."
	switch {
	case form.Cancelled:
		msg = "You are not allowed to edit cancelled forms."
	case form.Status.Finished():
		msg = fmt.Sprintf("You are not allowed to edit %s forms.", strings.ToLower(string(form.Status)))
	}
	return forbidden(msg, map[string]any{"form_id": form.ID, "user_id": user.ID})
}

// assignNumber gives the form its number. Generated numbers are only taken
// when the form has none; a manual number is only accepted when the
// template does not number forms itself.
func (s *Service) assignNumber(ctx context.Context, tx store.Tx, user *model.User, form *model.Form, req SubmitRequest) (bool, error) {
	if form.Number() != "" {
		return false, nil
	}
	tpl := form.Template

	if numbering.Enabled(tpl) {
		if !req.AutoGenerateNumber && !(numbering.Automatic(tpl) && !form.Persisted()) {
			return false, nil
		}
		number, ok, err := s.numbers.NextNumber(ctx, tx, user, tpl, true)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, apperrors.New("You are not allowed to generate a form number for this form template.", apperrors.CategoryAuthz).
				WithTextCode(CodeNumberForbidden).
				WithMetadata(map[string]any{"template_id": tpl.ID, "user_id": user.ID})
		}
		form.FormNumber = &number
		return true, nil
	}

	manual := strings.TrimSpace(req.FormNumber)
	if manual == "" {
		return false, nil
	}
	taken, err := tx.FormNumberExists(ctx, manual, form.ID)
	if err != nil {
		return false, err
	}
	if taken {
		return false, apperrors.NewValidation("form number already in use", apperrors.FieldError{
			Field:   "form_number",
			Message: "A form with this number already exists",
			Value:   manual,
		}).WithTextCode(CodeNumberTaken)
	}
	form.FormNumber = &manual
	return true, nil
}

// attachDocuments stores uploads and links them to the form. The returned
// keys let the caller remove files when the transaction is rolled back.
func (s *Service) attachDocuments(ctx context.Context, tx store.Tx, form *model.Form, uploads []DocumentUpload) ([]string, error) {
	var keys []string
	dir := "forms/" + strconv.FormatUint(uint64(form.ID), 10)
	for i, up := range uploads {
		doc := model.Document{
			FormID:         form.ID,
			DocumentTypeID: up.DocumentTypeID,
			Name:           strings.TrimSpace(up.Name),
			URL:            strings.TrimSpace(up.URL),
			DisplayOrder:   up.DisplayOrder,
			UploadedAt:     s.now(),
		}
		switch {
		case len(up.Data) > 0:
			key, err := s.documents.Put(dir, up.Name, bytes.NewReader(up.Data))
			if err != nil {
				return keys, err
			}
			keys = append(keys, key)
			doc.Path = key
		case doc.URL == "":
			return keys, apperrors.NewValidation("invalid document", apperrors.FieldError{
				Field:   fmt.Sprintf("documents[%d]", i),
				Message: "A document needs either content or a URL",
				Value:   up.Name,
			})
		}
		if doc.Name == "" {
			doc.Name = doc.URL
		}
		if err := tx.SaveDocument(ctx, &doc); err != nil {
			return keys, err
		}
		form.Documents = append(form.Documents, doc)
	}
	return keys, nil
}

// removeDocuments unlinks documents of the form and returns the storage keys
// to delete once the transaction commits. Ids of other forms are ignored.
func (s *Service) removeDocuments(ctx context.Context, tx store.Tx, form *model.Form, ids []uint) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	wanted := make(map[uint]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	docs, err := tx.ListDocuments(ctx, form.ID)
	if err != nil {
		return nil, err
	}
	var keys []string
	kept := docs[:0]
	for _, d := range docs {
		if !wanted[d.ID] {
			kept = append(kept, d)
			continue
		}
		if err := tx.DeleteDocument(ctx, d.ID); err != nil {
			return nil, err
		}
		if d.Path != "" {
			keys = append(keys, d.Path)
		}
	}
	form.Documents = kept
	return keys, nil
}

// PreviewNumber returns the number the user would get for a new form
// without advancing the counter
func (s *Service) PreviewNumber(ctx context.Context, userID, templateID uint) (string, error) {
	var number string
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		user, err := s.activeUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		tpl, err := tx.GetTemplate(ctx, templateID)
		if err != nil {
			return err
		}
		n, ok, err := s.numbers.NextNumber(ctx, tx, user, tpl, false)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.New("You are not allowed to generate this form number", apperrors.CategoryAuthz).
				WithTextCode(CodeNumberForbidden).
				WithMetadata(map[string]any{"template_id": templateID, "user_id": userID})
		}
		number = n
		return nil
	})
	return number, err
}
