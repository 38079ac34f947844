// Package service runs the custom forms use cases: each one loads what it
// needs, applies the workflow rules and persists the outcome atomically.
package service

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/catalog"
	"github.com/usnistgov/NEMO-custom-forms/internal/mapping"
	"github.com/usnistgov/NEMO-custom-forms/internal/metrics"
	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/notify"
	"github.com/usnistgov/NEMO-custom-forms/internal/numbering"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/role"
	"github.com/usnistgov/NEMO-custom-forms/internal/storage"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
	"github.com/usnistgov/NEMO-custom-forms/internal/workflow"
)

// Dependencies wires a Service. Store, Resolver, Documents and Pipeline are
// required.
type Dependencies struct {
	Store              store.Store
	Resolver           role.Resolver
	Documents          *storage.DocumentStore
	Pipeline           *pdf.Pipeline
	Mailer             notify.Mailer
	Metrics            *metrics.Recorder
	Mappings           *mapping.Resolver
	NotificationExpiry time.Duration
	Logger             *zap.Logger
}

// Service orchestrates the workflow engine, numbering, notifications and
// the PDF pipeline
type Service struct {
	store     store.Store
	engine    *workflow.Engine
	numbers   *numbering.Generator
	catalog   *catalog.Validator
	mappings  *mapping.Resolver
	notifier  *notify.Notifier
	mailer    notify.Mailer
	documents *storage.DocumentStore
	pipeline  *pdf.Pipeline
	metrics   *metrics.Recorder
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a service from deps
func New(deps Dependencies) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("store cannot be nil")
	case deps.Resolver == nil:
		return nil, fmt.Errorf("role resolver cannot be nil")
	case deps.Documents == nil:
		return nil, fmt.Errorf("document store cannot be nil")
	case deps.Pipeline == nil:
		return nil, fmt.Errorf("pdf pipeline cannot be nil")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = notify.NewLogMailer(logger)
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = metrics.New(nil)
	}
	mappings := deps.Mappings
	if mappings == nil {
		mappings = mapping.NewResolver("", "")
	}

	notifier := notify.NewNotifier(deps.NotificationExpiry, logger)
	numbers := numbering.NewGenerator(deps.Resolver, logger)

	return &Service{
		store:     deps.Store,
		engine:    workflow.NewEngine(deps.Resolver, notifier, logger),
		numbers:   numbers,
		catalog:   catalog.NewValidator(numbers, logger),
		mappings:  mappings,
		notifier:  notifier,
		mailer:    mailer,
		documents: deps.Documents,
		pipeline:  deps.Pipeline,
		metrics:   recorder,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Engine exposes the workflow rules used by the service
func (s *Service) Engine() *workflow.Engine {
	return s.engine
}

// Text codes of service errors
const (
	CodeInactiveUser     = "INACTIVE_USER"
	CodeForbidden        = "FORBIDDEN"
	CodeNumberForbidden  = "NUMBER_FORBIDDEN"
	CodeNumberTaken      = "FORM_NUMBER_TAKEN"
	CodeTemplateDisabled = "TEMPLATE_DISABLED"
	CodeBadRequest       = "BAD_REQUEST"
)

func forbidden(msg string, meta map[string]any) error {
	return apperrors.New(msg, apperrors.CategoryAuthz).
		WithTextCode(CodeForbidden).
		WithMetadata(meta)
}

func badRequest(msg string) error {
	return apperrors.New(msg, apperrors.CategoryBadInput).WithTextCode(CodeBadRequest)
}

// activeUser loads the acting user. Inactive accounts cannot do anything.
func (s *Service) activeUser(ctx context.Context, tx store.Tx, id uint) (*model.User, error) {
	if id == 0 {
		return nil, apperrors.New("a user is required", apperrors.CategoryAuth).WithTextCode(CodeInactiveUser)
	}
	user, err := tx.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, apperrors.New("user account is not active", apperrors.CategoryAuth).
			WithTextCode(CodeInactiveUser).
			WithMetadata(map[string]any{"user_id": id})
	}
	return user, nil
}

// loadForm returns the form with its template attached
func (s *Service) loadForm(ctx context.Context, tx store.Tx, id uint) (*model.Form, error) {
	form, err := tx.GetForm(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl, err := tx.GetTemplate(ctx, form.TemplateID)
	if err != nil {
		return nil, err
	}
	form.Template = tpl
	return form, nil
}

// templatePDF returns the template's fillable PDF, reading it from document
// storage when it is not held inline
func (s *Service) templatePDF(tpl *model.Template) ([]byte, error) {
	if len(tpl.PDF) > 0 {
		return tpl.PDF, nil
	}
	if tpl.PDFPath == "" {
		return nil, apperrors.New(fmt.Sprintf("template %q has no PDF", tpl.Name), apperrors.CategoryNotFound).
			WithMetadata(map[string]any{"template_id": tpl.ID})
	}
	return s.documents.Read(tpl.PDFPath)
}

// notifyCandidates refreshes the form's notifications and returns the next
// action candidates
func (s *Service) notifyCandidates(ctx context.Context, tx store.Tx, form *model.Form) ([]model.User, int, error) {
	candidates, err := s.engine.NextActionCandidates(ctx, tx, form)
	if err != nil {
		return nil, 0, err
	}
	created, err := s.notifier.CreateForForm(ctx, tx, form, candidates)
	if err != nil {
		return nil, 0, err
	}
	return candidates, created, nil
}

// send delivers mail without failing the calling operation
func (s *Service) send(ctx context.Context, msg *notify.Message) {
	if msg == nil {
		return
	}
	if err := s.mailer.Send(ctx, *msg); err != nil {
		s.logger.Warn("failed to send email",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}
