package mcp

import (
	"fmt"
	"strings"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/pdf"
	"github.com/usnistgov/NEMO-custom-forms/internal/service"
)

// Formatting functions

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func formatResult(result *bool) string {
	switch {
	case result == nil:
		return "recorded"
	case *result:
		return "approved"
	default:
		return "denied"
	}
}

func formatTemplates(templates []model.Template) string {
	if len(templates) == 0 {
		return "No form templates are available to this user"
	}
	text := fmt.Sprintf("Available templates (%d):\n", len(templates))
	for _, tpl := range templates {
		text += fmt.Sprintf("- [%d] %s", tpl.ID, tpl.Name)
		if len(tpl.Actions) > 0 {
			text += fmt.Sprintf(" (%d action(s))", len(tpl.Actions))
		}
		if tpl.Numbering != nil && tpl.Numbering.Enabled {
			text += " numbered"
		}
		text += "\n"
	}
	return text
}

func formatSubmitResult(result *service.SubmitResult) string {
	verb := "Updated"
	if result.Created {
		verb = "Created"
	}
	form := result.Form
	text := fmt.Sprintf("%s form %d\n", verb, form.ID)
	if number := form.Number(); number != "" {
		text += fmt.Sprintf("Form number: %s\n", number)
	}
	text += fmt.Sprintf("Status: %s\n", form.Status)
	if result.Record != nil {
		text += fmt.Sprintf("Action: %s (rank %d) %s\n", result.Record.ActionType.Label(), result.Record.ActionRank, formatResult(result.Record.Result))
	}
	if len(form.Documents) > 0 {
		text += fmt.Sprintf("Documents: %d\n", len(form.Documents))
	}
	text += fmt.Sprintf("Users notified: %d\n", result.Notified)
	return text
}

func formatStatus(status *service.FormStatus) string {
	form := status.Form
	text := fmt.Sprintf("Form %d (%s)\n", form.ID, status.Template)
	if number := form.Number(); number != "" {
		text += fmt.Sprintf("Form number: %s\n", number)
	}
	text += fmt.Sprintf("Status: %s\n", form.Status)
	if form.Cancelled {
		text += "Cancelled"
		if form.CancellationReason != "" {
			text += fmt.Sprintf(": %s", form.CancellationReason)
		}
		text += "\n"
	}
	if form.Creator != nil {
		text += fmt.Sprintf("Creator: %s\n", form.Creator.DisplayName())
	}

	for _, record := range form.Records {
		text += fmt.Sprintf("- %s #%d %s", record.ActionType.Label(), record.ActionRank, formatResult(record.Result))
		if record.Actor != nil {
			text += fmt.Sprintf(" by %s", record.Actor.DisplayName())
		}
		text += fmt.Sprintf(" on %s\n", record.Time.Format("2006-01-02 15:04"))
	}

	if status.NextAction != nil {
		text += fmt.Sprintf("Next action: %s (id %d, role %s)\n", status.NextAction.DisplayName(), status.NextAction.ID, status.NextAction.Role)
		if len(status.Choices) > 0 {
			labels := make([]string, 0, len(status.Choices))
			for _, c := range status.Choices {
				labels = append(labels, fmt.Sprintf("%s=%s", c.Value, c.Label))
			}
			text += fmt.Sprintf("Choices: %s\n", strings.Join(labels, ", "))
		}
		if len(status.Candidates) > 0 {
			text += fmt.Sprintf("Can act: %s\n", strings.Join(status.Candidates, ", "))
		}
	}
	text += fmt.Sprintf("You can take action: %t\n", status.CanTakeAction)
	text += fmt.Sprintf("You can edit: %t\n", status.CanEdit)
	text += fmt.Sprintf("You can cancel: %t\n", status.CanCancel)

	for _, column := range status.Columns {
		text += fmt.Sprintf("%s: %s\n", column.Label, column.Value)
	}
	return text
}

func formatFieldsResult(result *pdf.PDFFieldsFileResult) string {
	text := fmt.Sprintf("PDF Form Fields for: %s\n", result.Path)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	text += fmt.Sprintf("Total fields: %d\n", len(result.Fields))
	for i, f := range result.Fields {
		text += fmt.Sprintf("%d. %s (%s)", i+1, f.Name, f.Type)
		if f.Value != "" {
			text += fmt.Sprintf(" = %q", f.Value)
		}
		if len(f.States) > 0 {
			text += fmt.Sprintf(" states: %s", strings.Join(f.States, "/"))
		}
		if f.ReadOnly {
			text += " read-only"
		}
		if f.Required {
			text += " required"
		}
		for _, w := range f.Widgets {
			text += fmt.Sprintf("\n   Page %d at %.0f,%.0f", w.Page, w.Rect.LLX, w.Rect.LLY)
		}
		text += "\n"
	}
	return text
}

func formatPDFSearchDirectoryResult(result *pdf.PDFSearchDirectoryResult) string {
	text := fmt.Sprintf("Found %d PDF file(s) in directory: %s\n", result.TotalCount, result.Directory)
	if result.SearchQuery != "" {
		text += fmt.Sprintf("Search query: %s\n", result.SearchQuery)
	}
	text += "\nFiles:\n"

	for i, file := range result.Files {
		text += fmt.Sprintf("%d. %s\n", i+1, file.Name)
		text += fmt.Sprintf("   Path: %s\n", file.Path)
		text += fmt.Sprintf("   Size: %d bytes\n", file.Size)
		text += fmt.Sprintf("   Modified: %s\n", file.ModifiedTime)
	}
	return text
}

func formatPDFStatsFileResult(result *pdf.PDFStatsFileResult) string {
	text := "PDF File Statistics\n"
	text += fmt.Sprintf("File: %s\n", result.Path)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	text += fmt.Sprintf("Form fields: %d\n", result.Fields)
	text += fmt.Sprintf("Modified: %s\n", result.ModifiedDate)

	if result.Title != "" {
		text += fmt.Sprintf("Title: %s\n", result.Title)
	}
	if result.Author != "" {
		text += fmt.Sprintf("Author: %s\n", result.Author)
	}
	if result.Subject != "" {
		text += fmt.Sprintf("Subject: %s\n", result.Subject)
	}
	if result.Producer != "" {
		text += fmt.Sprintf("Producer: %s\n", result.Producer)
	}
	if result.CreatedDate != "" {
		text += fmt.Sprintf("Created: %s\n", result.CreatedDate)
	}
	return text
}

func formatPDFServerInfoResult(result *pdf.PDFServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Output Directory: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n\n", result.MaxFileSize/(1024*1024))

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("📂 Directory Contents (%d PDF files found):\n", result.TotalFiles)
		for i, file := range result.DirectoryContents {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more files\n", result.TotalFiles-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Path, file.Size)
		}
		text += "\n"
	} else {
		text += "📂 Directory Contents: No PDF files found in the output directory\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}
	return text
}
