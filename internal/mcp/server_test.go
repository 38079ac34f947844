package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usnistgov/NEMO-custom-forms/internal/config"
	"github.com/usnistgov/NEMO-custom-forms/internal/descriptions"
	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf/pdftest"
	"github.com/usnistgov/NEMO-custom-forms/internal/role"
	"github.com/usnistgov/NEMO-custom-forms/internal/service"
	"github.com/usnistgov/NEMO-custom-forms/internal/storage"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

type testEnv struct {
	ctx     context.Context
	server  *Server
	forms   *service.Service
	files   *pdf.Service
	outFS   afero.Fs
	creator *model.User
	staff   *model.User
	tpl     *model.Template
}

func testConfig() *config.Config {
	return &config.Config{
		Mode:            config.ModeStdio,
		ServerName:      "test-server",
		Version:         "1.0.0",
		OutputDirectory: "/output",
		MaxFileSize:     1024 * 1024,
	}
}

func formPDF() []byte {
	return pdftest.New().
		Page(612, 792).
		TextField(1, "name", [4]float64{50, 700, 300, 720}).
		TextField(1, "number", [4]float64{350, 700, 550, 720}).
		Bytes()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	env := &testEnv{ctx: ctx}
	env.creator = &model.User{Username: "ada", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", IsActive: true}
	env.staff = &model.User{Username: "sam", FirstName: "Sam", LastName: "Staff", Email: "sam@example.com", IsActive: true, IsStaff: true}
	require.NoError(t, s.SaveUser(ctx, env.creator))
	require.NoError(t, s.SaveUser(ctx, env.staff))

	env.tpl = &model.Template{
		Name:       "Purchase request",
		Enabled:    true,
		PDF:        formPDF(),
		FormFields: `[{"type": "textbox", "name": "name", "title": "Name", "required": true}]`,
		Filename:   `{{.Template.Name}} {{.Number}}`,
		Numbering:  &model.AutomaticNumbering{Enabled: true, Template: `PR-{{ pad 3 .CurrentNumber }}`},
		Actions:    []model.Action{{Type: model.ActionApproval, Rank: 1, Role: role.IsStaff}},
		Mappings:   []model.SpecialMapping{{FieldName: "number", FieldValue: model.MappingFormNumber}},
	}
	require.NoError(t, s.SaveTemplate(ctx, env.tpl))

	resolver, err := role.NewCasbinResolver(s, nil)
	require.NoError(t, err)
	require.NoError(t, resolver.Sync(ctx))

	docs, err := storage.NewDocumentStore(afero.NewMemMapFs(), "/documents", nil)
	require.NoError(t, err)
	pipeline := pdf.NewPipeline(pdf.Options{}, pdf.WithResolver(storage.NewResolver(docs, nil)))

	env.forms, err = service.New(service.Dependencies{
		Store:     s,
		Resolver:  resolver,
		Documents: docs,
		Pipeline:  pipeline,
	})
	require.NoError(t, err)

	env.outFS = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(env.outFS, "/attachments/quote.pdf", pdftest.Blank(2, 612, 792), 0o644))
	require.NoError(t, afero.WriteFile(env.outFS, "/templates/request.pdf", formPDF(), 0o644))
	env.files, err = pdf.NewService(env.outFS, "/output", pipeline, 1024*1024, nil)
	require.NoError(t, err)

	env.server, err = NewServer(testConfig(), env.forms, env.files, nil)
	require.NoError(t, err)
	return env
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

// Helper function to extract text from a CallToolResult
func extractTextFromResult(result *mcp.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	for _, content := range result.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			return textContent.Text
		}
		if textContentPtr, ok := content.(*mcp.TextContent); ok {
			return textContentPtr.Text
		}
	}
	return ""
}

func (env *testEnv) submit(t *testing.T) uint {
	t.Helper()
	result, err := env.server.handleFormSubmit(env.ctx, call(map[string]interface{}{
		"user_id":     float64(env.creator.ID),
		"template_id": float64(env.tpl.ID),
		"answers":     `{"name": "Ada"}`,
	}))
	require.NoError(t, err)
	text := extractTextFromResult(result)
	require.False(t, result.IsError, text)
	return createdFormID(t, text)
}

func createdFormID(t *testing.T, text string) uint {
	t.Helper()
	var id uint
	_, err := fmt.Sscanf(text, "Created form %d", &id)
	require.NoError(t, err, text)
	return id
}

func TestNewServer(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		cfg   *config.Config
		forms *service.Service
		files *pdf.Service
	}{
		{name: "nil config", forms: env.forms, files: env.files},
		{name: "nil forms", cfg: testConfig(), files: env.files},
		{name: "nil files", cfg: testConfig(), forms: env.forms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.cfg, tt.forms, tt.files, nil)
			assert.Error(t, err)
			assert.Nil(t, server)
		})
	}

	assert.NotNil(t, env.server.mcpServer)
	assert.Same(t, env.forms, env.server.forms)
	assert.Same(t, env.files, env.server.files)
}

func TestServer_ToolsRegistered(t *testing.T) {
	env := newTestEnv(t)

	response := env.server.mcpServer.HandleMessage(env.ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(response)
	require.NoError(t, err)

	for _, name := range descriptions.GetAllToolNames() {
		assert.Contains(t, string(data), fmt.Sprintf("%q", name))
	}
}

func TestServer_FormWorkflow(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.server.handleFormTemplates(env.ctx, call(map[string]interface{}{"user_id": float64(env.creator.ID)}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "Purchase request")

	result, err = env.server.handleFormNumberPreview(env.ctx, call(map[string]interface{}{
		"user_id":     float64(env.creator.ID),
		"template_id": float64(env.tpl.ID),
	}))
	require.NoError(t, err)
	assert.Equal(t, "Next form number: PR-001", extractTextFromResult(result))

	result, err = env.server.handleFormSubmit(env.ctx, call(map[string]interface{}{
		"user_id":     float64(env.creator.ID),
		"template_id": float64(env.tpl.ID),
		"answers":     map[string]interface{}{"name": "Ada"},
		"documents":   `[{"path": "attachments/quote.pdf"}]`,
	}))
	require.NoError(t, err)
	text := extractTextFromResult(result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Created form")
	assert.Contains(t, text, "Form number: PR-001")
	assert.Contains(t, text, "Documents: 1")
	assert.Contains(t, text, "Users notified: 1")

	formID := float64(createdFormID(t, text))

	result, err = env.server.handleFormStatus(env.ctx, call(map[string]interface{}{"user_id": float64(env.staff.ID), "form_id": formID}))
	require.NoError(t, err)
	text = extractTextFromResult(result)
	assert.Contains(t, text, "Status: PENDING")
	assert.Contains(t, text, "You can take action: true")

	result, err = env.server.handleFormAction(env.ctx, call(map[string]interface{}{
		"user_id": float64(env.staff.ID),
		"form_id": formID,
		"result":  "true",
	}))
	require.NoError(t, err)
	text = extractTextFromResult(result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Result: approved")
	assert.Contains(t, text, "Status: CLOSED")

	result, err = env.server.handleFormRender(env.ctx, call(map[string]interface{}{"user_id": float64(env.creator.ID), "form_id": formID}))
	require.NoError(t, err)
	text = extractTextFromResult(result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "/Purchase_request_PR-001.pdf")
	assert.Contains(t, text, "Pages: 3")

	rendered, err := afero.ReadFile(env.outFS, "/Purchase_request_PR-001.pdf")
	require.NoError(t, err)
	doc, err := pdf.Open(rendered)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.PageCount())

	result, err = env.server.handleFormNumbers(env.ctx, call(map[string]interface{}{"template_id": float64(env.tpl.ID)}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "PR-001")
}

func TestServer_FormSubmitErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		args     map[string]interface{}
		contains string
	}{
		{
			name:     "missing user",
			args:     map[string]interface{}{"template_id": float64(env.tpl.ID)},
			contains: "user_id is required",
		},
		{
			name:     "missing template and form",
			args:     map[string]interface{}{"user_id": float64(env.creator.ID)},
			contains: "template_id or form_id is required",
		},
		{
			name:     "malformed answers",
			args:     map[string]interface{}{"user_id": float64(env.creator.ID), "template_id": float64(env.tpl.ID), "answers": "{"},
			contains: "answers",
		},
		{
			name: "bad document data",
			args: map[string]interface{}{
				"user_id":     float64(env.creator.ID),
				"template_id": float64(env.tpl.ID),
				"documents":   `[{"name": "x.pdf", "data": "%%%"}]`,
			},
			contains: "not valid base64",
		},
		{
			name:     "required answer missing",
			args:     map[string]interface{}{"user_id": float64(env.creator.ID), "template_id": float64(env.tpl.ID)},
			contains: "required questions were not answered",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.server.handleFormSubmit(env.ctx, call(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, extractTextFromResult(result), tt.contains)
		})
	}
}

func TestServer_FormSubmitWithBase64Document(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.server.handleFormSubmit(env.ctx, call(map[string]interface{}{
		"user_id":     float64(env.creator.ID),
		"template_id": float64(env.tpl.ID),
		"answers":     `{"name": ["Ada"]}`,
		"documents": []interface{}{
			map[string]interface{}{"name": "extra.pdf", "data": base64.StdEncoding.EncodeToString(pdftest.Blank(1, 612, 792))},
		},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, extractTextFromResult(result))
	assert.Contains(t, extractTextFromResult(result), "Documents: 1")
}

func TestServer_FormCancel(t *testing.T) {
	env := newTestEnv(t)
	formID := float64(env.submit(t))

	result, err := env.server.handleFormCancel(env.ctx, call(map[string]interface{}{
		"user_id": float64(env.creator.ID),
		"form_id": formID,
		"reason":  " duplicate ",
	}))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Form %d cancelled: duplicate", uint(formID)), extractTextFromResult(result))

	result, err = env.server.handleFormAction(env.ctx, call(map[string]interface{}{
		"user_id": float64(env.staff.ID),
		"form_id": formID,
		"result":  "true",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_FormActionForbidden(t *testing.T) {
	env := newTestEnv(t)
	formID := float64(env.submit(t))

	result, err := env.server.handleFormAction(env.ctx, call(map[string]interface{}{
		"user_id": float64(env.creator.ID),
		"form_id": formID,
		"result":  "true",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestServer_PDFFileTools(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.server.handlePDFFieldsFile(env.ctx, call(map[string]interface{}{"path": "templates/request.pdf"}))
	require.NoError(t, err)
	text := extractTextFromResult(result)
	assert.Contains(t, text, "Total fields: 2")
	assert.Contains(t, text, "name (text)")

	result, err = env.server.handlePDFFillFile(env.ctx, call(map[string]interface{}{
		"path":    "templates/request.pdf",
		"output":  "filled/request",
		"fields":  `{"name": "Jane"}`,
		"stamp":   "DENIED",
		"flatten": true,
	}))
	require.NoError(t, err)
	text = extractTextFromResult(result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "/filled/request.pdf")
	assert.Contains(t, text, "Stamped: true")
	assert.Contains(t, text, "Flattened: true")

	result, err = env.server.handlePDFMergeFiles(env.ctx, call(map[string]interface{}{
		"paths":  []interface{}{"filled/request.pdf", "attachments/quote.pdf", "missing.pdf"},
		"output": "packets/all.pdf",
	}))
	require.NoError(t, err)
	text = extractTextFromResult(result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Merged 2 file(s)")
	assert.Contains(t, text, "Pages: 3")
	assert.Contains(t, text, "Skipped: missing.pdf")

	result, err = env.server.handlePDFValidateFile(env.ctx, call(map[string]interface{}{"path": "packets/all.pdf"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "is valid")

	result, err = env.server.handlePDFStatsFile(env.ctx, call(map[string]interface{}{"path": "packets/all.pdf"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "Pages: 3")

	result, err = env.server.handlePDFSearchDirectory(env.ctx, call(map[string]interface{}{"query": "quote"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "quote.pdf")

	result, err = env.server.handlePDFSearchDirectory(env.ctx, call(map[string]interface{}{"query": "zebra"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(result), "No PDF files found")

	result, err = env.server.handlePDFServerInfo(env.ctx, call(nil))
	require.NoError(t, err)
	text = extractTextFromResult(result)
	assert.Contains(t, text, "test-server v1.0.0")
	assert.Contains(t, text, "pdf_merge_files")
	assert.Contains(t, text, "form_submit")
}

func TestServer_InvalidArguments(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args    map[string]interface{}
	}{
		{"fields without path", env.server.handlePDFFieldsFile, map[string]interface{}{}},
		{"fill without output", env.server.handlePDFFillFile, map[string]interface{}{"path": "templates/request.pdf"}},
		{"merge without paths", env.server.handlePDFMergeFiles, map[string]interface{}{"output": "x.pdf"}},
		{"stats of missing file", env.server.handlePDFStatsFile, map[string]interface{}{"path": "nope.pdf"}},
		{"status with text id", env.server.handleFormStatus, map[string]interface{}{"user_id": "one", "form_id": 1.0}},
		{"render unknown form", env.server.handleFormRender, map[string]interface{}{"user_id": float64(env.creator.ID), "form_id": 99.0}},
		{"numbers without template", env.server.handleFormNumbers, map[string]interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(env.ctx, call(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}
