package mcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/goliatone/go-errors"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/config"
	"github.com/usnistgov/NEMO-custom-forms/internal/descriptions"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/service"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	forms     *service.Service
	files     *pdf.Service
	mcpServer *server.MCPServer
	logger    *zap.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, forms *service.Service, files *pdf.Service, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if forms == nil {
		return nil, fmt.Errorf("forms service cannot be nil")
	}
	if files == nil {
		return nil, fmt.Errorf("file service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:    cfg,
		forms:     forms,
		files:     files,
		mcpServer: mcpServer,
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

func userParam() mcp.ToolOption {
	return mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Id of the acting user"))
}

func formParam() mcp.ToolOption {
	return mcp.WithNumber("form_id", mcp.Required(), mcp.Description("Id of the form"))
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	tool := func(name string, opts ...mcp.ToolOption) mcp.Tool {
		return mcp.NewTool(name, append([]mcp.ToolOption{mcp.WithDescription(descriptions.GetToolDescription(name))}, opts...)...)
	}

	s.mcpServer.AddTool(tool("form_templates", userParam()), s.handleFormTemplates)

	s.mcpServer.AddTool(tool("form_submit",
		userParam(),
		mcp.WithNumber("template_id", mcp.Description("Template of a new form")),
		mcp.WithNumber("form_id", mcp.Description("Form to edit")),
		mcp.WithString("answers", mcp.Description("JSON object of question name to a value or a list of values")),
		mcp.WithString("notes", mcp.Description("Free text notes")),
		mcp.WithString("form_number", mcp.Description("Manual form number when numbering is disabled")),
		mcp.WithBoolean("auto_generate_number", mcp.Description("Generate the form number now")),
		mcp.WithString("documents", mcp.Description("JSON array of {name, data (base64) | path | url, document_type_id, display_order}")),
		mcp.WithString("remove_documents", mcp.Description("JSON array of document ids to remove")),
		mcp.WithNumber("action_id", mcp.Description("Action to take while saving")),
		mcp.WithString("action_result", mcp.Description("Result of the action: true or false")),
	), s.handleFormSubmit)

	s.mcpServer.AddTool(tool("form_action",
		userParam(), formParam(),
		mcp.WithNumber("action_id", mcp.Description("Action to take, defaults to the next action")),
		mcp.WithString("result", mcp.Description("true to approve or acknowledge, false to deny")),
	), s.handleFormAction)

	s.mcpServer.AddTool(tool("form_cancel",
		userParam(), formParam(),
		mcp.WithString("reason", mcp.Description("Why the form is cancelled")),
	), s.handleFormCancel)

	s.mcpServer.AddTool(tool("form_status", userParam(), formParam()), s.handleFormStatus)

	s.mcpServer.AddTool(tool("form_render",
		userParam(), formParam(),
		mcp.WithString("output", mcp.Description("File name in the output directory, defaults to the template's filename rule")),
	), s.handleFormRender)

	s.mcpServer.AddTool(tool("form_number_preview",
		userParam(),
		mcp.WithNumber("template_id", mcp.Required(), mcp.Description("Id of the template")),
	), s.handleFormNumberPreview)

	s.mcpServer.AddTool(tool("form_numbers",
		mcp.WithNumber("template_id", mcp.Required(), mcp.Description("Id of the template")),
	), s.handleFormNumbers)

	s.mcpServer.AddTool(tool("pdf_fields_file",
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the PDF file in the output directory")),
	), s.handlePDFFieldsFile)

	s.mcpServer.AddTool(tool("pdf_fill_file",
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the PDF file to fill")),
		mcp.WithString("output", mcp.Required(), mcp.Description("Path of the filled PDF")),
		mcp.WithString("fields", mcp.Description("JSON object of field name to value")),
		mcp.WithString("signatures", mcp.Description("JSON object of field name to signature text")),
		mcp.WithString("stamp", mcp.Description("Text stamped across every page")),
		mcp.WithString("stamp_color", mcp.Description("Stamp color as a hex value such as #ff0000")),
		mcp.WithBoolean("flatten", mcp.Description("Make every field read only")),
	), s.handlePDFFillFile)

	s.mcpServer.AddTool(tool("pdf_merge_files",
		mcp.WithString("paths", mcp.Required(), mcp.Description("JSON array of PDF paths in merge order")),
		mcp.WithString("output", mcp.Required(), mcp.Description("Path of the merged PDF")),
	), s.handlePDFMergeFiles)

	s.mcpServer.AddTool(tool("pdf_validate_file",
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the PDF file")),
	), s.handlePDFValidateFile)

	s.mcpServer.AddTool(tool("pdf_stats_file",
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the PDF file")),
	), s.handlePDFStatsFile)

	s.mcpServer.AddTool(tool("pdf_search_directory",
		mcp.WithString("directory", mcp.Description("Directory to search, defaults to the output directory")),
		mcp.WithString("query", mcp.Description("Optional search query for fuzzy matching")),
	), s.handlePDFSearchDirectory)

	s.mcpServer.AddTool(tool("pdf_server_info"), s.handlePDFServerInfo)
}

// errorResult reports err to the client, listing field problems of
// validation errors
func errorResult(err error) *mcp.CallToolResult {
	text := err.Error()
	if fields, ok := apperrors.GetValidationErrors(err); ok && len(fields) > 0 {
		var b strings.Builder
		b.WriteString(text)
		for _, f := range fields {
			fmt.Fprintf(&b, "\n- %s: %s", f.Field, f.Message)
		}
		text = b.String()
	}
	return mcp.NewToolResultError(text)
}

// Form handlers

func (s *Server) handleFormTemplates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := argUint(request.GetArguments(), "user_id", true)
	if err != nil {
		return errorResult(err), nil
	}
	templates, err := s.forms.AvailableTemplates(ctx, userID)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(formatTemplates(templates)), nil
}

func (s *Server) handleFormSubmit(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := service.SubmitRequest{
		Notes:              argString(args, "notes"),
		FormNumber:         argString(args, "form_number"),
		AutoGenerateNumber: argBool(args, "auto_generate_number"),
		ActionResult:       argString(args, "action_result"),
	}
	var err error
	if req.UserID, err = argUint(args, "user_id", true); err != nil {
		return errorResult(err), nil
	}
	if req.TemplateID, err = argUint(args, "template_id", false); err != nil {
		return errorResult(err), nil
	}
	if req.FormID, err = argUint(args, "form_id", false); err != nil {
		return errorResult(err), nil
	}
	if req.TemplateID == 0 && req.FormID == 0 {
		return errorResult(fmt.Errorf("template_id or form_id is required")), nil
	}
	if req.ActionID, err = argUint(args, "action_id", false); err != nil {
		return errorResult(err), nil
	}
	if req.Answers, err = argAnswers(args, "answers"); err != nil {
		return errorResult(err), nil
	}
	if req.Documents, err = s.argDocuments(args, "documents"); err != nil {
		return errorResult(err), nil
	}
	if req.RemoveDocuments, err = argUintList(args, "remove_documents"); err != nil {
		return errorResult(err), nil
	}

	result, err := s.forms.Submit(ctx, req)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(formatSubmitResult(result)), nil
}

func (s *Server) handleFormAction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := service.ActionRequest{Result: argString(args, "result")}
	var err error
	if req.UserID, err = argUint(args, "user_id", true); err != nil {
		return errorResult(err), nil
	}
	if req.FormID, err = argUint(args, "form_id", true); err != nil {
		return errorResult(err), nil
	}
	if req.ActionID, err = argUint(args, "action_id", false); err != nil {
		return errorResult(err), nil
	}

	result, err := s.forms.TakeAction(ctx, req)
	if err != nil {
		return errorResult(err), nil
	}
	text := fmt.Sprintf("Recorded %s (rank %d) on form %d\n", result.Record.ActionType.Label(), result.Record.ActionRank, result.Form.ID)
	text += fmt.Sprintf("Result: %s\n", formatResult(result.Record.Result))
	text += fmt.Sprintf("Status: %s\n", result.Form.Status)
	text += fmt.Sprintf("Users notified: %d\n", result.Notified)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleFormCancel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := service.CancelRequest{Reason: argString(args, "reason")}
	var err error
	if req.UserID, err = argUint(args, "user_id", true); err != nil {
		return errorResult(err), nil
	}
	if req.FormID, err = argUint(args, "form_id", true); err != nil {
		return errorResult(err), nil
	}

	form, err := s.forms.Cancel(ctx, req)
	if err != nil {
		return errorResult(err), nil
	}
	text := fmt.Sprintf("Form %d cancelled", form.ID)
	if form.CancellationReason != "" {
		text += fmt.Sprintf(": %s", form.CancellationReason)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleFormStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID, err := argUint(args, "user_id", true)
	if err != nil {
		return errorResult(err), nil
	}
	formID, err := argUint(args, "form_id", true)
	if err != nil {
		return errorResult(err), nil
	}

	status, err := s.forms.Status(ctx, userID, formID)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(formatStatus(status)), nil
}

func (s *Server) handleFormRender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID, err := argUint(args, "user_id", true)
	if err != nil {
		return errorResult(err), nil
	}
	formID, err := argUint(args, "form_id", true)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := s.forms.Render(ctx, userID, formID)
	if err != nil {
		return errorResult(err), nil
	}
	name := argString(args, "output")
	if name == "" {
		name = result.Filename
	}
	path, err := s.files.WriteFile(name, result.PDF)
	if err != nil {
		return errorResult(err), nil
	}

	text := fmt.Sprintf("Rendered form %d to %s\n", formID, path)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	text += fmt.Sprintf("Size: %d bytes\n", len(result.PDF))
	if result.Stamp != "" {
		text += fmt.Sprintf("Stamp: %s\n", result.Stamp)
	}
	if len(result.SkippedSignatures) > 0 {
		text += fmt.Sprintf("Skipped signatures: %s\n", strings.Join(result.SkippedSignatures, ", "))
	}
	if len(result.SkippedDocuments) > 0 {
		text += fmt.Sprintf("Skipped documents: %s\n", strings.Join(result.SkippedDocuments, ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleFormNumberPreview(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID, err := argUint(args, "user_id", true)
	if err != nil {
		return errorResult(err), nil
	}
	templateID, err := argUint(args, "template_id", true)
	if err != nil {
		return errorResult(err), nil
	}

	number, err := s.forms.PreviewNumber(ctx, userID, templateID)
	if err != nil {
		return errorResult(err), nil
	}
	if number == "" {
		return mcp.NewToolResultText("Automatic numbering is not enabled for this template"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Next form number: %s", number)), nil
}

func (s *Server) handleFormNumbers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	templateID, err := argUint(request.GetArguments(), "template_id", true)
	if err != nil {
		return errorResult(err), nil
	}
	numbers, err := s.forms.CurrentNumbers(ctx, templateID)
	if err != nil {
		return errorResult(err), nil
	}
	if len(numbers) == 0 {
		return mcp.NewToolResultText("No form numbers have been generated for this template"), nil
	}
	text := fmt.Sprintf("Numbering counters (%d):\n", len(numbers))
	for _, n := range numbers {
		text += fmt.Sprintf("- %s: %d (%s)", n.Key, n.Value, n.Rendered)
		if n.User != nil {
			text += fmt.Sprintf(" for %s", n.User.DisplayName())
		}
		text += "\n"
	}
	return mcp.NewToolResultText(text), nil
}

// PDF file handlers

func (s *Server) handlePDFFieldsFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(err), nil
	}
	result, err := s.files.PDFFieldsFile(pdf.PDFFieldsFileRequest{Path: path})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(formatFieldsResult(result)), nil
}

func (s *Server) handlePDFFillFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req := pdf.PDFFillFileRequest{
		Path:       argString(args, "path"),
		Output:     argString(args, "output"),
		Stamp:      argString(args, "stamp"),
		StampColor: argString(args, "stamp_color"),
		Flatten:    argBool(args, "flatten"),
	}
	if req.Path == "" {
		return errorResult(fmt.Errorf("path is required")), nil
	}
	var err error
	if req.Fields, err = argStringMap(args, "fields"); err != nil {
		return errorResult(err), nil
	}
	if req.Signatures, err = argStringMap(args, "signatures"); err != nil {
		return errorResult(err), nil
	}

	result, err := s.files.PDFFillFile(ctx, req)
	if err != nil {
		return errorResult(err), nil
	}
	text := fmt.Sprintf("Filled PDF written to %s\n", result.Output)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	text += fmt.Sprintf("Fields set: %d\n", result.FieldsSet)
	if len(result.Placed) > 0 {
		text += fmt.Sprintf("Signatures placed: %s\n", strings.Join(result.Placed, ", "))
	}
	if len(result.Skipped) > 0 {
		text += fmt.Sprintf("Signatures skipped: %s\n", strings.Join(result.Skipped, ", "))
	}
	text += fmt.Sprintf("Stamped: %t\n", result.Stamped)
	text += fmt.Sprintf("Flattened: %t\n", result.Flattened)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFMergeFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	paths, err := argStringList(args, "paths")
	if err != nil {
		return errorResult(err), nil
	}
	result, err := s.files.PDFMergeFiles(ctx, pdf.PDFMergeFilesRequest{Paths: paths, Output: argString(args, "output")})
	if err != nil {
		return errorResult(err), nil
	}
	text := fmt.Sprintf("Merged %d file(s) into %s\n", len(result.Merged), result.Output)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	if len(result.Skipped) > 0 {
		text += fmt.Sprintf("Skipped: %s\n", strings.Join(result.Skipped, ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFValidateFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(err), nil
	}
	result, err := s.files.PDFValidateFile(pdf.PDFValidateFileRequest{Path: path})
	if err != nil {
		return errorResult(err), nil
	}
	if result.Valid {
		return mcp.NewToolResultText(fmt.Sprintf("PDF file %s is valid and readable", result.Path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("PDF validation failed for %s: %s", result.Path, result.Message)), nil
}

func (s *Server) handlePDFStatsFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return errorResult(err), nil
	}
	result, err := s.files.PDFStatsFile(pdf.PDFStatsFileRequest{Path: path})
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(formatPDFStatsFileResult(result)), nil
}

func (s *Server) handlePDFSearchDirectory(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	result, err := s.files.PDFSearchDirectory(pdf.PDFSearchDirectoryRequest{
		Directory: argString(args, "directory"),
		Query:     argString(args, "query"),
	})
	if err != nil {
		return errorResult(err), nil
	}
	if result.TotalCount == 0 {
		text := fmt.Sprintf("No PDF files found in directory: %s", result.Directory)
		if result.SearchQuery != "" {
			text += fmt.Sprintf(" (searched for: %s)", result.SearchQuery)
		}
		return mcp.NewToolResultText(text), nil
	}
	return mcp.NewToolResultText(formatPDFSearchDirectoryResult(result)), nil
}

func (s *Server) handlePDFServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := descriptions.GetAllToolNames()
	tools := make([]pdf.ToolInfo, 0, len(names))
	for _, name := range names {
		tools = append(tools, pdf.ToolInfo{
			Name:        name,
			Description: firstLine(descriptions.GetToolDescription(name)),
			Parameters:  descriptions.ToolParameters[name],
		})
	}
	result, err := s.files.PDFServerInfo(s.config.ServerName, s.config.Version, tools)
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(formatPDFServerInfoResult(result)), nil
}

// Run serves MCP over the process's standard streams until ctx is done or
// the input is closed
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("starting MCP server",
		zap.String("name", s.config.ServerName),
		zap.String("version", s.config.Version),
		zap.String("output_dir", s.config.OutputDirectory))

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
