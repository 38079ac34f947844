package descriptions

import "sort"

// Tool descriptions with practical examples and use cases

const (
	// Form workflow tools
	FormTemplatesDescription = `List the form templates the acting user may create forms for.

**When to use:** Before submitting a new form, to find the template id and see which templates are enabled for the user.

**Why it's useful:** Templates restricted by create roles or disabled by an administrator are filtered out, so every listed template can be submitted.

**Examples:**
• "Which forms can user 12 fill in?"
• "Find the id of the Purchase request template"

**Best practices:** Call this first and use the returned id with form_submit and form_number_preview.`

	FormSubmitDescription = `Create a new form or edit an existing one, optionally taking its next action in the same step.

**When to use:** A user fills in a template's questions, corrects a pending form, or approves a form while editing it.

**Why it's useful:** Answers are checked against the template's field definitions, a form number is generated when numbering is enabled, supplementary documents are attached and the users able to take the next action are notified.

**Examples:**
• Create: "Submit a Purchase request for user 12 with vendor=Acme and amount=120"
• Edit: "Change the amount of form 40 to 150"
• Edit and act: "Update form 40 and approve it as user 3"

**Common workflows:**
1. form_templates → form_number_preview → form_submit
2. form_status → form_submit with action_id and action_result

**Best practices:** Answers are given as a JSON object of question name to a string or a list of strings. Required questions must be answered or the whole submission is rejected.`

	FormActionDescription = `Take the next pending action of a form: an approval, an acknowledgment or setting the form number.

**When to use:** The acting user holds the role of the form's next action and wants to approve, deny or acknowledge it.

**Why it's useful:** Actions are strictly ordered by rank. The form status follows automatically: a denial finishes the form, completing every action closes it.

**Examples:**
• "Approve form 40 as user 3" (result=true)
• "Deny form 40 as user 3" (result=false)
• "Acknowledge form 41"

**Best practices:** Use form_status first to see the next action and its choices. A creator cannot act on their own form unless the action allows it.`

	FormCancelDescription = `Cancel a form. Cancelled forms cannot be edited, acted on or reopened.

**When to use:** The creator, a superuser or an approver withdraws a form.

**Why it's useful:** Pending notifications for the form are removed and rendered PDFs carry a CANCELLED stamp.

**Examples:**
• "Cancel form 40 as user 12 because it was submitted twice"

**Best practices:** Provide a reason; it is kept with the form.`

	FormStatusDescription = `Describe a form for one user: status, next action, available choices, who can act and the template's display columns.

**When to use:** Before taking an action or editing, to learn what the user may do.

**Why it's useful:** Combines the workflow state and the permission checks in one call.

**Examples:**
• "What is pending on form 40?"
• "Can user 3 approve form 40?"`

	FormRenderDescription = `Render a form to PDF: fill the template with the answers and workflow fields, draw signatures, flatten the fields, stamp cancelled or denied forms and append the supplementary documents.

**When to use:** A user needs the printable PDF of a form.

**Why it's useful:** The output is written to the output directory under the template's filename rule, ready to download or merge.

**Examples:**
• "Render form 40 as user 12"

**Best practices:** Check skipped_signatures and skipped_documents in the result; documents that cannot be read are left out rather than failing the render.`

	FormNumberPreviewDescription = `Show the form number the next submission of a template would receive, without consuming it.

**When to use:** Before submitting, to display the upcoming number to the user.

**Why it's useful:** The counter is not advanced, so previews never leave gaps in the numbering.

**Examples:**
• "What number will the next Purchase request get?"`

	FormNumbersDescription = `List the numbering counters of a template with the last number each produced.

**When to use:** Auditing numbering, or checking per-user and grouped sequences.

**Examples:**
• "Show the current numbers for template 2"`

	// PDF file tools
	PDFFieldsFileDescription = `List the interactive form fields of a PDF file with their types, values, states and widget positions.

**When to use:** Preparing a template, or choosing field names for pdf_fill_file.

**Why it's useful:** Shows the exact fully qualified names the fill pipeline matches against, including checkbox and radio states.

**Examples:**
• "Which fields does templates/purchase.pdf have?"`

	PDFFillFileDescription = `Fill a PDF file's form fields, draw signature text into signature fields, optionally flatten and stamp it, and write the result.

**When to use:** Producing a filled copy of a PDF outside the form workflow.

**Why it's useful:** Uses the same pipeline as form rendering. Signatures that do not fit their field are skipped and reported.

**Examples:**
• "Fill templates/purchase.pdf with name=Jane and write filled/jane.pdf"
• "Fill and stamp DENIED"

**Best practices:** Checkbox values accept true/false, on/off or the state name.`

	PDFMergeFilesDescription = `Concatenate PDF files in the given order and write the result.

**When to use:** Combining a rendered form with other documents.

**Why it's useful:** Unreadable inputs are skipped and reported instead of failing the merge.

**Examples:**
• "Merge filled/jane.pdf and quotes/acme.pdf into packets/jane.pdf"`

	PDFValidateFileDescription = `Verify that a file is a readable PDF within the size limit.

**When to use:** Before filling or merging files of unknown origin.

**Examples:**
• "Is uploads/quote.pdf a valid PDF?"`

	PDFStatsFileDescription = `Get page count, field count, size and document information of a PDF file.

**When to use:** Inspecting a template or a rendered form.

**Examples:**
• "How many pages does packets/jane.pdf have?"`

	PDFSearchDirectoryDescription = `Find PDF files in the output directory with optional fuzzy search on file names.

**When to use:** Locating rendered forms or templates before filling or merging.

**Examples:**
• "Find rendered purchase requests" (query="purchase")`

	PDFServerInfoDescription = `Get server information, the available tools and the first files of the output directory.

**When to use:** At the start of a session to discover capabilities.`
)

// ToolDescriptions maps tool names to their descriptions
var ToolDescriptions = map[string]string{
	"form_templates":       FormTemplatesDescription,
	"form_submit":          FormSubmitDescription,
	"form_action":          FormActionDescription,
	"form_cancel":          FormCancelDescription,
	"form_status":          FormStatusDescription,
	"form_render":          FormRenderDescription,
	"form_number_preview":  FormNumberPreviewDescription,
	"form_numbers":         FormNumbersDescription,
	"pdf_fields_file":      PDFFieldsFileDescription,
	"pdf_fill_file":        PDFFillFileDescription,
	"pdf_merge_files":      PDFMergeFilesDescription,
	"pdf_validate_file":    PDFValidateFileDescription,
	"pdf_stats_file":       PDFStatsFileDescription,
	"pdf_search_directory": PDFSearchDirectoryDescription,
	"pdf_server_info":      PDFServerInfoDescription,
}

// ToolParameters summarizes the arguments of each tool
var ToolParameters = map[string]string{
	"form_templates":       "user_id (required)",
	"form_submit":          "user_id (required), template_id or form_id (one required), answers (JSON object), notes, form_number, auto_generate_number, documents (JSON array), remove_documents (JSON array), action_id, action_result",
	"form_action":          "user_id (required), form_id (required), action_id (optional, defaults to the next action), result",
	"form_cancel":          "user_id (required), form_id (required), reason",
	"form_status":          "user_id (required), form_id (required)",
	"form_render":          "user_id (required), form_id (required), output (optional file name)",
	"form_number_preview":  "user_id (required), template_id (required)",
	"form_numbers":         "template_id (required)",
	"pdf_fields_file":      "path (required)",
	"pdf_fill_file":        "path (required), output (required), fields (JSON object), signatures (JSON object), stamp, stamp_color, flatten",
	"pdf_merge_files":      "paths (required, JSON array), output (required)",
	"pdf_validate_file":    "path (required)",
	"pdf_stats_file":       "path (required)",
	"pdf_search_directory": "directory, query",
	"pdf_server_info":      "No parameters required",
}

// GetToolDescription returns the description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the sorted names of every tool
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
