package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/goliatone/go-errors"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
)

// Tx exposes the entity operations available inside and outside a transaction
type Tx interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SaveUser(ctx context.Context, user *model.User) error

	GetTemplate(ctx context.Context, id uint) (*model.Template, error)
	ListTemplates(ctx context.Context) ([]model.Template, error)
	SaveTemplate(ctx context.Context, template *model.Template) error
	DeleteTemplate(ctx context.Context, id uint) error

	GetForm(ctx context.Context, id uint) (*model.Form, error)
	ListForms(ctx context.Context, templateID uint) ([]model.Form, error)
	SaveForm(ctx context.Context, form *model.Form) error
	DeleteForm(ctx context.Context, id uint) error
	FormNumberExists(ctx context.Context, number string, excludeFormID uint) (bool, error)

	CreateRecord(ctx context.Context, record *model.ActionRecord) error
	ListRecords(ctx context.Context, formID uint) ([]model.ActionRecord, error)

	// ReadAndIncrement returns the next value of the sequence: 1 on first
	// use, otherwise the stored value plus one. The new value is stored only
	// when persist is true.
	ReadAndIncrement(ctx context.Context, key SequenceKey, persist bool) (int, error)
	ListSequences(ctx context.Context, templateID uint) ([]model.NumberSequence, error)

	SaveDocument(ctx context.Context, doc *model.Document) error
	DeleteDocument(ctx context.Context, id uint) error
	ListDocuments(ctx context.Context, formID uint) ([]model.Document, error)

	// GetOrCreateNotification stores n unless one exists for the same user
	// and form, in which case its expiration is refreshed.
	GetOrCreateNotification(ctx context.Context, n *model.Notification) (bool, error)
	DeleteNotificationsForForm(ctx context.Context, formID uint) (int, error)
	ListNotifications(ctx context.Context, userID uint) ([]model.Notification, error)
}

// Store is a Tx that can also open transactions
type Store interface {
	Tx
	// RunInTransaction executes fn atomically: every write made through the
	// Tx is committed when fn returns nil and discarded otherwise.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// SequenceKey identifies a numbering counter
type SequenceKey struct {
	TemplateID uint
	Group      *int
	UserID     *uint
}

// String returns the canonical key: t<template>[_g<group>][_u<user>]
func (k SequenceKey) String() string {
	var b strings.Builder
	b.WriteString("t")
	b.WriteString(strconv.FormatUint(uint64(k.TemplateID), 10))
	if k.Group != nil {
		b.WriteString("_g")
		b.WriteString(strconv.Itoa(*k.Group))
	}
	if k.UserID != nil {
		b.WriteString("_u")
		b.WriteString(strconv.FormatUint(uint64(*k.UserID), 10))
	}
	return b.String()
}

func (k SequenceKey) sequence(value int) model.NumberSequence {
	return model.NumberSequence{
		Key:            k.String(),
		TemplateID:     k.TemplateID,
		NumberingGroup: k.Group,
		UserID:         k.UserID,
		Value:          value,
	}
}

// Text codes attached to store errors
const (
	CodeNotFound  = "NOT_FOUND"
	CodeDuplicate = "DUPLICATE"
)

func notFound(kind string, id any) error {
	return apperrors.New(fmt.Sprintf("%s %v not found", kind, id), apperrors.CategoryNotFound).
		WithTextCode(CodeNotFound).
		WithMetadata(map[string]any{"kind": kind, "id": id})
}

func duplicate(kind string, source error) error {
	err := apperrors.New(fmt.Sprintf("%s already exists", kind), apperrors.CategoryConflict).
		WithTextCode(CodeDuplicate)
	err.Source = source
	return err
}

func internal(source error, message string) error {
	return apperrors.Wrap(source, apperrors.CategoryInternal, message)
}

// IsNotFound reports whether err signals a missing entity
func IsNotFound(err error) bool {
	return apperrors.HasCategory(err, apperrors.CategoryNotFound)
}

// IsDuplicate reports whether err signals a uniqueness violation
func IsDuplicate(err error) bool {
	return apperrors.HasCategory(err, apperrors.CategoryConflict)
}
