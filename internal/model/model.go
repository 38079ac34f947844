package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the workflow state of a form
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusClosed   Status = "CLOSED"
)

// Finished reports whether no further action can be taken in this status
func (s Status) Finished() bool {
	return s == StatusDenied || s == StatusClosed
}

// ActionType identifies the kind of step an action represents
type ActionType string

const (
	ActionApproval       ActionType = "approval"
	ActionAcknowledgment ActionType = "acknowledgment"
	ActionSetFormNumber  ActionType = "set_form_number"
)

// Valid reports whether t is a known action type
func (t ActionType) Valid() bool {
	switch t {
	case ActionApproval, ActionAcknowledgment, ActionSetFormNumber:
		return true
	}
	return false
}

// Label returns the human readable form of the action type
func (t ActionType) Label() string {
	switch t {
	case ActionApproval:
		return "Approval"
	case ActionAcknowledgment:
		return "Acknowledgment"
	case ActionSetFormNumber:
		return "Set form number"
	}
	return string(t)
}

// Group is a named set of users. Its permissions are granted to every member.
type Group struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Name        string   `gorm:"uniqueIndex;size:150" json:"name"`
	Permissions []string `gorm:"serializer:json" json:"permissions,omitempty"`
}

// User is a person able to submit or act on forms
type User struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Username    string   `gorm:"uniqueIndex;size:150" json:"username"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	IsActive    bool     `json:"is_active"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
	Groups      []Group  `gorm:"many2many:user_groups" json:"groups,omitempty"`
	Permissions []string `gorm:"serializer:json" json:"permissions,omitempty"`
}

// DisplayName returns the user's full name, or username when no name is set
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Template defines a form type: its PDF, dynamic fields, actions and mappings
type Template struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:200" json:"name"`
	Enabled      bool      `json:"enabled"`
	PDF          []byte    `json:"-"`
	PDFPath      string    `json:"pdf_path,omitempty"`
	FormFields   string    `gorm:"type:text" json:"form_fields"`
	Filename     string    `json:"filename,omitempty"`
	CreateRoles  []string  `gorm:"serializer:json" json:"create_roles,omitempty"`
	ViewAllRoles []string  `gorm:"serializer:json" json:"view_all_roles,omitempty"`
	ApproveRoles []string  `gorm:"serializer:json" json:"approve_roles,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Numbering *AutomaticNumbering `gorm:"constraint:OnDelete:CASCADE" json:"numbering,omitempty"`
	Actions   []Action            `gorm:"constraint:OnDelete:CASCADE" json:"actions,omitempty"`
	Mappings  []SpecialMapping    `gorm:"constraint:OnDelete:CASCADE" json:"mappings,omitempty"`
	Columns   []DisplayColumn     `gorm:"constraint:OnDelete:CASCADE" json:"columns,omitempty"`
}

// ActionByID returns the template action with the given id
func (t *Template) ActionByID(id uint) *Action {
	for i := range t.Actions {
		if t.Actions[i].ID == id {
			return &t.Actions[i]
		}
	}
	return nil
}

// AutomaticNumbering configures form number generation for a template
type AutomaticNumbering struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	TemplateID     uint   `gorm:"uniqueIndex" json:"template_id"`
	Enabled        bool   `json:"enabled"`
	NumberingGroup *int   `json:"numbering_group,omitempty"`
	PerUser        bool   `json:"per_user"`
	Template       string `json:"template"`
	Role           string `json:"role,omitempty"`
}

// Action is one ranked, role-gated step of a template's workflow
type Action struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	TemplateID        uint       `gorm:"uniqueIndex:idx_action_template_rank" json:"template_id"`
	Type              ActionType `gorm:"size:32" json:"type"`
	Name              string     `json:"name,omitempty"`
	Rank              int        `gorm:"uniqueIndex:idx_action_template_rank" json:"rank"`
	Role              string     `json:"role"`
	SelfActionAllowed bool       `json:"self_action_allowed"`
	CanEditForm       bool       `json:"can_edit_form"`
	CC                []string   `gorm:"serializer:json" json:"cc,omitempty"`
}

// DisplayName returns the configured name or a generated one
func (a *Action) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("%s #%d", a.Type.Label(), a.Rank)
}

// ActionRecord is the immutable history entry of a completed action.
// Type and rank are copied from the action when recorded.
type ActionRecord struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	FormID     uint       `gorm:"uniqueIndex:idx_record_form_type_rank" json:"form_id"`
	ActionType ActionType `gorm:"size:32;uniqueIndex:idx_record_form_type_rank" json:"action_type"`
	ActionRank int        `gorm:"uniqueIndex:idx_record_form_type_rank" json:"action_rank"`
	Time       time.Time  `json:"time"`
	ActorID    uint       `json:"actor_id"`
	Actor      *User      `json:"actor,omitempty"`
	Result     *bool      `json:"result"`
}

// Form is a submission against a template
type Form struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	FormNumber         *string    `gorm:"uniqueIndex" json:"form_number,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CreatorID          uint       `json:"creator_id"`
	Creator            *User      `json:"creator,omitempty"`
	LastUpdated        time.Time  `json:"last_updated"`
	LastUpdatedByID    uint       `json:"last_updated_by_id"`
	Status             Status     `gorm:"size:16;index" json:"status"`
	TemplateID         uint       `gorm:"index" json:"template_id"`
	Template           *Template  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	TemplateData       string     `gorm:"type:text" json:"template_data"`
	Notes              string     `json:"notes,omitempty"`
	Cancelled          bool       `json:"cancelled"`
	CancellationTime   *time.Time `json:"cancellation_time,omitempty"`
	CancelledByID      *uint      `json:"cancelled_by_id,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`

	Records   []ActionRecord `gorm:"constraint:OnDelete:CASCADE" json:"records,omitempty"`
	Documents []Document     `gorm:"constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}

// Persisted reports whether the form has been saved
func (f *Form) Persisted() bool {
	return f != nil && f.ID != 0
}

// Number returns the form number or an empty string
func (f *Form) Number() string {
	if f == nil || f.FormNumber == nil {
		return ""
	}
	return *f.FormNumber
}

// RecordForRank returns the action record stored for the given rank
func (f *Form) RecordForRank(rank int) *ActionRecord {
	for i := range f.Records {
		if f.Records[i].ActionRank == rank {
			return &f.Records[i]
		}
	}
	return nil
}

// MappingValue names the workflow metadata a special mapping projects
type MappingValue string

const (
	MappingCreator              MappingValue = "creator"
	MappingCreationTime         MappingValue = "creation_time"
	MappingFormNumber           MappingValue = "form_number"
	MappingActionTaken          MappingValue = "action_taken"
	MappingActionTakenBy        MappingValue = "action_taken_by"
	MappingActionTakenTime      MappingValue = "action_taken_time"
	MappingActionTakenByAndTime MappingValue = "action_taken_by_and_time"
)

// IsAction reports whether the value is derived from an action record
func (v MappingValue) IsAction() bool {
	return strings.HasPrefix(string(v), "action_")
}

// IsSignature reports whether the value renders as a signature image
func (v MappingValue) IsSignature() bool {
	return v == MappingActionTakenBy
}

// SpecialMapping projects workflow metadata onto a PDF field
type SpecialMapping struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	TemplateID        uint         `gorm:"index" json:"template_id"`
	FieldName         string       `json:"field_name"`
	FieldValue        MappingValue `gorm:"size:32" json:"field_value"`
	FieldValueBoolean string       `json:"field_value_boolean,omitempty"`
	ActionID          *uint        `json:"action_id,omitempty"`
	Action            *Action      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// DisplayColumn maps an answer field to a table column
type DisplayColumn struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	TemplateID   uint   `gorm:"uniqueIndex:idx_column_template_order" json:"template_id"`
	FieldName    string `json:"field_name"`
	DisplayName  string `json:"display_name,omitempty"`
	DisplayOrder int    `gorm:"uniqueIndex:idx_column_template_order" json:"display_order"`
}

// Label returns the column header
func (c *DisplayColumn) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return strings.ReplaceAll(c.FieldName, "_", " ")
}

// DocumentType classifies supplementary documents
type DocumentType struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
	TemplateID   *uint  `json:"template_id,omitempty"`
}

// Document is a supplementary file attached to a form
type Document struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	FormID         uint          `gorm:"index" json:"form_id"`
	DocumentTypeID *uint         `json:"document_type_id,omitempty"`
	DocumentType   *DocumentType `json:"document_type,omitempty"`
	Name           string        `json:"name"`
	Path           string        `json:"path,omitempty"`
	URL            string        `json:"url,omitempty"`
	DisplayOrder   int           `json:"display_order"`
	UploadedAt     time.Time     `json:"uploaded_at"`
}

// Notification tells a user that a form awaits their attention
type Notification struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	UserID     uint      `gorm:"uniqueIndex:idx_notification_user_form" json:"user_id"`
	FormID     uint      `gorm:"uniqueIndex:idx_notification_user_form" json:"form_id"`
	Kind       string    `json:"kind"`
	Expiration time.Time `json:"expiration"`
}

// NumberSequence stores the current counter for a numbering key
type NumberSequence struct {
	Key            string `gorm:"column:seq_key;primaryKey;size:64" json:"key"`
	TemplateID     uint   `gorm:"index" json:"template_id"`
	NumberingGroup *int   `json:"numbering_group,omitempty"`
	UserID         *uint  `json:"user_id,omitempty"`
	Value          int    `json:"value"`
}

// All lists every model for schema migration
func All() []any {
	return []any{
		&Group{}, &User{}, &Template{}, &AutomaticNumbering{}, &Action{},
		&Form{}, &ActionRecord{}, &SpecialMapping{}, &DisplayColumn{},
		&DocumentType{}, &Document{}, &Notification{}, &NumberSequence{},
	}
}
