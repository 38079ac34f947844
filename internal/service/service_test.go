package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	apperrors "github.com/goliatone/go-errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/notify"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf/pdftest"
	"github.com/usnistgov/NEMO-custom-forms/internal/role"
	"github.com/usnistgov/NEMO-custom-forms/internal/storage"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
	"github.com/usnistgov/NEMO-custom-forms/internal/workflow"
)

type recordingMailer struct {
	sent []notify.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) subjects() []string {
	out := make([]string, len(m.sent))
	for i, msg := range m.sent {
		out[i] = msg.Subject
	}
	return out
}

type fixture struct {
	ctx     context.Context
	store   store.Store
	docs    *storage.DocumentStore
	mailer  *recordingMailer
	svc     *Service
	creator *model.User
	staff   *model.User
	other   *model.User
	tpl     *model.Template
}

func templatePDF() []byte {
	return pdftest.New().
		Page(612, 792).
		TextField(1, "name", [4]float64{50, 700, 300, 720}).
		TextField(1, "number", [4]float64{350, 700, 550, 720}).
		TextField(1, "approved_by", [4]float64{50, 100, 300, 150}).
		Bytes()
}

func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	s, err := store.NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, store.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func newFixture(t *testing.T, configure func(*model.Template)) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemoryStore(), configure)
}

func newFixtureOn(t *testing.T, s store.Store, configure func(*model.Template)) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{ctx: ctx, store: s, mailer: &recordingMailer{}}
	f.creator = &model.User{Username: "ada", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", IsActive: true}
	f.staff = &model.User{Username: "sam", FirstName: "Sam", LastName: "Staff", Email: "sam@example.com", IsActive: true, IsStaff: true}
	f.other = &model.User{Username: "otto", IsActive: true}
	for _, u := range []*model.User{f.creator, f.staff, f.other, {Username: "gone"}} {
		require.NoError(t, s.SaveUser(ctx, u))
	}

	f.tpl = &model.Template{
		Name:       "Purchase request",
		Enabled:    true,
		PDF:        templatePDF(),
		FormFields: `[{"type": "textbox", "name": "name", "title": "Name", "required": true}]`,
		Filename:   `{{.Template.Name}} {{.Number}}`,
		Numbering:  &model.AutomaticNumbering{Enabled: true, Template: `PR-{{ pad 3 .CurrentNumber }}`},
		Actions:    []model.Action{{Type: model.ActionApproval, Rank: 1, Role: role.IsStaff}},
		Columns:    []model.DisplayColumn{{FieldName: "name", DisplayName: "Requester", DisplayOrder: 1}},
	}
	f.tpl.Mappings = []model.SpecialMapping{
		{FieldName: "number", FieldValue: model.MappingFormNumber},
		{FieldName: "approved_by", FieldValue: model.MappingActionTakenBy, Action: &f.tpl.Actions[0]},
	}
	if configure != nil {
		configure(f.tpl)
	}
	require.NoError(t, s.SaveTemplate(ctx, f.tpl))

	resolver, err := role.NewCasbinResolver(s, nil)
	require.NoError(t, err)
	require.NoError(t, resolver.Sync(ctx))

	f.docs, err = storage.NewDocumentStore(afero.NewMemMapFs(), "/documents", nil)
	require.NoError(t, err)

	f.svc, err = New(Dependencies{
		Store:     s,
		Resolver:  resolver,
		Documents: f.docs,
		Pipeline:  pdf.NewPipeline(pdf.Options{}, pdf.WithResolver(storage.NewResolver(f.docs, nil))),
		Mailer:    f.mailer,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) submit(t *testing.T, name string) *model.Form {
	t.Helper()
	res, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		Answers:    map[string][]string{"name": {name}},
	})
	require.NoError(t, err)
	return res.Form
}

func (f *fixture) approve(t *testing.T, form *model.Form, result string) *ActionResult {
	t.Helper()
	res, err := f.svc.TakeAction(f.ctx, ActionRequest{UserID: f.staff.ID, FormID: form.ID, Result: result})
	require.NoError(t, err)
	return res
}

func textCode(err error) string {
	var e *apperrors.Error
	if apperrors.As(err, &e) {
		return e.TextCode
	}
	return ""
}

func errorMessage(err error) string {
	var e *apperrors.Error
	if apperrors.As(err, &e) {
		return e.Message
	}
	return ""
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestSubmit_CreatesNumberedForm(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		Answers:    map[string][]string{"name": {"Ada"}},
		Notes:      "  urgent ",
	})
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, model.StatusPending, res.Form.Status)
	assert.Equal(t, "PR-001", res.Form.Number())
	assert.Equal(t, "urgent", res.Form.Notes)
	assert.Equal(t, 1, res.Notified, "only the approver is notified")

	list, err := f.store.ListNotifications(f.ctx, f.staff.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Equal(t, []string{
		"Purchase request #PR-001 has been received",
		"Purchase request #PR-001: action required",
	}, f.mailer.subjects())
	assert.Equal(t, []string{"sam@example.com"}, f.mailer.sent[1].To)
}

func TestSubmit_NotifiesNextActionCandidates(t *testing.T) {
	eachStore(t, func(t *testing.T, s store.Store) {
		f := newFixtureOn(t, s, func(tpl *model.Template) { tpl.Mappings = nil })

		done := make(chan error, 1)
		var res *SubmitResult
		go func() {
			var err error
			res, err = f.svc.Submit(f.ctx, SubmitRequest{
				UserID:     f.creator.ID,
				TemplateID: f.tpl.ID,
				Answers:    map[string][]string{"name": {"Ada"}},
			})
			done <- err
		}()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("submit did not return")
		}
		assert.Equal(t, 1, res.Notified)
		assert.Equal(t, []string{"sam@example.com"}, f.mailer.sent[1].To)

		list, err := f.store.ListNotifications(f.ctx, f.staff.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}

func TestSubmit_MissingAnswerRollsBack(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Submit(f.ctx, SubmitRequest{UserID: f.creator.ID, TemplateID: f.tpl.ID})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	forms, err := f.store.ListForms(f.ctx, f.tpl.ID)
	require.NoError(t, err)
	assert.Empty(t, forms)

	number, err := f.svc.PreviewNumber(f.ctx, f.creator.ID, f.tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "PR-001", number, "the counter is not advanced by a failed submission")
}

func TestSubmit_InactiveUser(t *testing.T) {
	f := newFixture(t, nil)
	users, err := f.store.ListUsers(f.ctx)
	require.NoError(t, err)
	var inactive uint
	for _, u := range users {
		if !u.IsActive {
			inactive = u.ID
		}
	}

	_, err = f.svc.Submit(f.ctx, SubmitRequest{UserID: inactive, TemplateID: f.tpl.ID})
	require.Error(t, err)
	assert.Equal(t, CodeInactiveUser, textCode(err))
}

func TestSubmit_CreateRoles(t *testing.T) {
	f := newFixture(t, func(tpl *model.Template) { tpl.CreateRoles = []string{role.IsStaff} })

	_, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		Answers:    map[string][]string{"name": {"Ada"}},
	})
	require.Error(t, err)
	assert.True(t, workflow.IsAuthorization(err))
}

func TestSubmit_NumberRoleIsForbidden(t *testing.T) {
	f := newFixture(t, func(tpl *model.Template) { tpl.Numbering.Role = role.IsSuperuser })

	_, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:             f.creator.ID,
		TemplateID:         f.tpl.ID,
		Answers:            map[string][]string{"name": {"Ada"}},
		AutoGenerateNumber: true,
	})
	require.Error(t, err)
	assert.Equal(t, CodeNumberForbidden, textCode(err))

	forms, err := f.store.ListForms(f.ctx, f.tpl.ID)
	require.NoError(t, err)
	assert.Empty(t, forms)
}

func TestSubmit_ManualNumber(t *testing.T) {
	f := newFixture(t, func(tpl *model.Template) { tpl.Numbering = nil })

	res, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		Answers:    map[string][]string{"name": {"Ada"}},
		FormNumber: "X-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "X-1", res.Form.Number())

	_, err = f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		Answers:    map[string][]string{"name": {"Bob"}},
		FormNumber: "X-1",
	})
	require.Error(t, err)
	assert.Equal(t, CodeNumberTaken, textCode(err))
}

func TestSubmit_EditRules(t *testing.T) {
	f := newFixture(t, nil)
	form := f.submit(t, "Ada")

	res, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:  f.creator.ID,
		FormID:  form.ID,
		Answers: map[string][]string{"name": {"Ada L."}},
	})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Contains(t, res.Form.TemplateData, "Ada L.")
	assert.Equal(t, "PR-001", res.Form.Number(), "editing keeps the number")

	_, err = f.svc.Submit(f.ctx, SubmitRequest{
		UserID:  f.other.ID,
		FormID:  form.ID,
		Answers: map[string][]string{"name": {"Mallory"}},
	})
	require.Error(t, err)
	assert.Equal(t, "You are not allowed to edit this form.", errorMessage(err))

	f.approve(t, form, "true")
	_, err = f.svc.Submit(f.ctx, SubmitRequest{
		UserID:  f.creator.ID,
		FormID:  form.ID,
		Answers: map[string][]string{"name": {"Late"}},
	})
	require.Error(t, err)
	assert.Equal(t, "You are not allowed to edit closed forms.", errorMessage(err))
}

func TestSubmit_WithAction(t *testing.T) {
	f := newFixture(t, nil)
	form := f.submit(t, "Ada")

	res, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:       f.staff.ID,
		FormID:       form.ID,
		ActionID:     f.tpl.Actions[0].ID,
		ActionResult: "false",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, model.StatusDenied, res.Form.Status)
	assert.Contains(t, res.Form.TemplateData, `"Ada"`, "an action-only submission keeps the answers")

	_, err = f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		ActionID:   f.tpl.Actions[0].ID,
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCategory(err, apperrors.CategoryBadInput))
}

func TestSubmit_EditWithSelfAction(t *testing.T) {
	f := newFixture(t, func(tpl *model.Template) {
		tpl.Actions[0].Role = role.IsActive
		tpl.Actions[0].SelfActionAllowed = true
	})
	form := f.submit(t, "Ada")

	res, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:       f.creator.ID,
		FormID:       form.ID,
		Answers:      map[string][]string{"name": {"Ada L."}},
		ActionID:     f.tpl.Actions[0].ID,
		ActionResult: "true",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, model.StatusClosed, res.Form.Status)

	stored, err := f.store.GetForm(f.ctx, form.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.TemplateData, "Ada L.", "answers edited with the action are saved")
	assert.Equal(t, model.StatusClosed, stored.Status)
}

func TestSubmit_Documents(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		Answers:    map[string][]string{"name": {"Ada"}},
		Documents: []DocumentUpload{
			{Name: "quote.pdf", Data: pdftest.Blank(2, 612, 792), DisplayOrder: 2},
			{Name: "invoice.pdf", Data: pdftest.Blank(1, 612, 792), DisplayOrder: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Form.Documents, 2)
	quote := res.Form.Documents[0]
	assert.Equal(t, "quote.pdf", quote.Name)
	_, err = f.docs.Read(quote.Path)
	require.NoError(t, err)

	rendered, err := f.svc.Render(f.ctx, f.creator.ID, res.Form.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, rendered.Pages)
	assert.Empty(t, rendered.SkippedDocuments)

	_, err = f.svc.Submit(f.ctx, SubmitRequest{
		UserID:          f.creator.ID,
		FormID:          res.Form.ID,
		Answers:         map[string][]string{"name": {"Ada"}},
		RemoveDocuments: []uint{quote.ID},
	})
	require.NoError(t, err)
	_, err = f.docs.Read(quote.Path)
	assert.True(t, apperrors.IsNotFound(err))

	docs, err := f.store.ListDocuments(f.ctx, res.Form.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "invoice.pdf", docs[0].Name)
}

func TestSubmit_DocumentNeedsContent(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Submit(f.ctx, SubmitRequest{
		UserID:     f.creator.ID,
		TemplateID: f.tpl.ID,
		Answers:    map[string][]string{"name": {"Ada"}},
		Documents:  []DocumentUpload{{Name: "empty.pdf"}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestTakeAction(t *testing.T) {
	f := newFixture(t, nil)
	form := f.submit(t, "Ada")
	f.mailer.sent = nil

	_, err := f.svc.TakeAction(f.ctx, ActionRequest{UserID: f.creator.ID, FormID: form.ID, Result: "true"})
	require.Error(t, err)
	assert.True(t, workflow.HasCode(err, workflow.CodeNotAllowed))

	res := f.approve(t, form, "true")
	assert.Equal(t, model.StatusClosed, res.Form.Status)
	require.NotNil(t, res.Record.Result)
	assert.True(t, *res.Record.Result)
	assert.Equal(t, []string{"Purchase request #PR-001: status update (1 of 1)"}, f.mailer.subjects())

	list, err := f.store.ListNotifications(f.ctx, f.staff.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "the approver's notification is cleared")

	_, err = f.svc.TakeAction(f.ctx, ActionRequest{UserID: f.staff.ID, FormID: form.ID})
	require.Error(t, err)
	assert.True(t, apperrors.HasCategory(err, apperrors.CategoryBadInput))
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)
	form := f.submit(t, "Ada")

	_, err := f.svc.Cancel(f.ctx, CancelRequest{UserID: f.other.ID, FormID: form.ID})
	require.Error(t, err)
	assert.True(t, workflow.HasCode(err, workflow.CodeNotAllowed))

	cancelled, err := f.svc.Cancel(f.ctx, CancelRequest{UserID: f.creator.ID, FormID: form.ID, Reason: " duplicate "})
	require.NoError(t, err)
	assert.True(t, cancelled.Cancelled)
	assert.Equal(t, "duplicate", cancelled.CancellationReason)

	list, err := f.store.ListNotifications(f.ctx, f.staff.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.Cancel(f.ctx, CancelRequest{UserID: f.creator.ID, FormID: form.ID})
	assert.True(t, workflow.HasCode(err, workflow.CodeFormCancelled))

	_, err = f.svc.TakeAction(f.ctx, ActionRequest{UserID: f.staff.ID, FormID: form.ID, Result: "true"})
	assert.True(t, workflow.HasCode(err, workflow.CodeFormCancelled))

	rendered, err := f.svc.Render(f.ctx, f.creator.ID, form.ID)
	require.NoError(t, err)
	assert.Equal(t, StampCancelled, rendered.Stamp)
}

func TestRender(t *testing.T) {
	f := newFixture(t, nil)
	form := f.submit(t, "Ada")
	f.approve(t, form, "true")

	res, err := f.svc.Render(f.ctx, f.creator.ID, form.ID)
	require.NoError(t, err)
	assert.Equal(t, "Purchase_request_PR-001.pdf", res.Filename)
	assert.Equal(t, 1, res.Pages)
	assert.Empty(t, res.Stamp)
	assert.Empty(t, res.SkippedSignatures)

	fields, err := pdf.Inspect(res.PDF)
	require.NoError(t, err)
	values := map[string]string{}
	for _, fi := range fields {
		values[fi.Name] = fi.Value
		assert.True(t, fi.ReadOnly, "%s is flattened", fi.Name)
	}
	assert.Equal(t, "Ada", values["name"])
	assert.Equal(t, "PR-001", values["number"])
	assert.Empty(t, values["approved_by"], "signatures are drawn, not filled")

	_, err = f.svc.Render(f.ctx, f.other.ID, form.ID)
	require.Error(t, err)
	assert.True(t, workflow.IsAuthorization(err))
}

func TestRender_DeniedStampAndFilenameFallback(t *testing.T) {
	f := newFixture(t, func(tpl *model.Template) { tpl.Filename = "{{.Broken" })
	form := f.submit(t, "Ada")
	f.approve(t, form, "false")

	res, err := f.svc.Render(f.ctx, f.staff.ID, form.ID)
	require.NoError(t, err)
	assert.Equal(t, StampDenied, res.Stamp)
	assert.Equal(t, "Purchase_request.pdf", res.Filename)
}

func TestRenderFilename_TemplateFunctions(t *testing.T) {
	created := time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)
	data := filenameData{
		Form:     &model.Form{CreatedAt: created},
		Template: &model.Template{Name: "Purchase request"},
		Number:   "PR-001",
		Answers:  map[string]string{"name": "Ada"},
	}

	name, err := renderFilename(`{{ .Template.Name | lower | replace " " "-" }} {{ .Number | lower }} {{ dateInZone "2006-01-02" .Form.CreatedAt "UTC" }}`, data)
	require.NoError(t, err)
	assert.Equal(t, "purchase-request pr-001 2025-06-30", name)

	name, err = renderFilename(`{{ index .Answers "name" | quote }}`, data)
	require.NoError(t, err)
	assert.Equal(t, `"Ada"`, name)
}

func TestPreviewNumber(t *testing.T) {
	f := newFixture(t, nil)

	for i := 0; i < 2; i++ {
		number, err := f.svc.PreviewNumber(f.ctx, f.creator.ID, f.tpl.ID)
		require.NoError(t, err)
		assert.Equal(t, "PR-001", number)
	}
	f.submit(t, "Ada")
	number, err := f.svc.PreviewNumber(f.ctx, f.creator.ID, f.tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "PR-002", number)

	current, err := f.svc.CurrentNumbers(f.ctx, f.tpl.ID)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, 1, current[0].Value)
	assert.Equal(t, "PR-001", current[0].Rendered)
}

func TestPreviewNumber_Forbidden(t *testing.T) {
	f := newFixture(t, func(tpl *model.Template) { tpl.Numbering.Role = role.IsStaff })

	_, err := f.svc.PreviewNumber(f.ctx, f.creator.ID, f.tpl.ID)
	require.Error(t, err)
	assert.Equal(t, CodeNumberForbidden, textCode(err))

	number, err := f.svc.PreviewNumber(f.ctx, f.staff.ID, f.tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "PR-001", number)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	form := f.submit(t, "Ada")

	st, err := f.svc.Status(f.ctx, f.staff.ID, form.ID)
	require.NoError(t, err)
	assert.True(t, st.CanTakeAction)
	assert.False(t, st.CanEdit)
	require.NotNil(t, st.NextAction)
	assert.Equal(t, 1, st.NextAction.Rank)
	assert.Len(t, st.Choices, 2)
	assert.Equal(t, []string{"Sam Staff"}, st.Candidates)
	require.Len(t, st.Columns, 1)
	assert.Equal(t, "Requester", st.Columns[0].Label)
	assert.Equal(t, "Ada", st.Columns[0].Value)

	st, err = f.svc.Status(f.ctx, f.creator.ID, form.ID)
	require.NoError(t, err)
	assert.False(t, st.CanTakeAction)
	assert.True(t, st.CanEdit)
	assert.True(t, st.CanCancel)

	_, err = f.svc.Status(f.ctx, f.other.ID, form.ID)
	assert.True(t, workflow.IsAuthorization(err))
}

func TestAvailableTemplates(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.SaveTemplate(f.ctx, &model.Template{Name: "Disabled"}))
	require.NoError(t, f.store.SaveTemplate(f.ctx, &model.Template{Name: "Staff only", Enabled: true, CreateRoles: []string{role.IsStaff}}))

	list, err := f.svc.AvailableTemplates(f.ctx, f.creator.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Purchase request", list[0].Name)

	list, err = f.svc.AvailableTemplates(f.ctx, f.staff.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSaveTemplate(t *testing.T) {
	f := newFixture(t, nil)

	tpl := &model.Template{
		Name:       "Badge request",
		Enabled:    true,
		PDF:        templatePDF(),
		FormFields: `[{"type": "textbox", "name": "name"}, {"type": "textbox", "name": "missing"}]`,
	}
	err := f.svc.SaveTemplate(f.ctx, tpl)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Zero(t, tpl.ID)

	tpl.FormFields = `[{"type": "textbox", "name": "name"}]`
	require.NoError(t, f.svc.SaveTemplate(f.ctx, tpl))
	assert.NotZero(t, tpl.ID)
}

func TestStampFor(t *testing.T) {
	assert.Equal(t, StampCancelled, StampFor(&model.Form{Cancelled: true, Status: model.StatusDenied}))
	assert.Equal(t, StampDenied, StampFor(&model.Form{Status: model.StatusDenied}))
	assert.Empty(t, StampFor(&model.Form{Status: model.StatusClosed}))
}
