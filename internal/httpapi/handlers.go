package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/usnistgov/NEMO-custom-forms/internal/service"
)

type documentBody struct {
	Name           string `json:"name"`
	Data           []byte `json:"data,omitempty"`
	URL            string `json:"url,omitempty"`
	DocumentTypeID *uint  `json:"document_type_id,omitempty"`
	DisplayOrder   int    `json:"display_order,omitempty"`
}

type submitBody struct {
	TemplateID         uint           `json:"template_id"`
	Answers            map[string]any `json:"answers"`
	Notes              string         `json:"notes"`
	FormNumber         string         `json:"form_number"`
	AutoGenerateNumber bool           `json:"auto_generate_number"`
	Documents          []documentBody `json:"documents"`
	RemoveDocuments    []uint         `json:"remove_documents"`
	ActionID           uint           `json:"action_id"`
	ActionResult       any            `json:"action_result"`
}

// answerValues flattens a JSON answer into its string values
func answerValues(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, item := range vv {
			out = append(out, answerValues(item)...)
		}
		return out
	case string:
		return []string{vv}
	case float64:
		return []string{strconv.FormatFloat(vv, 'f', -1, 64)}
	case bool:
		return []string{strconv.FormatBool(vv)}
	default:
		return []string{fmt.Sprint(vv)}
	}
}

func resultText(v any) string {
	values := answerValues(v)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (b *submitBody) request(userID, formID uint) service.SubmitRequest {
	req := service.SubmitRequest{
		UserID:             userID,
		TemplateID:         b.TemplateID,
		FormID:             formID,
		Answers:            make(map[string][]string, len(b.Answers)),
		Notes:              b.Notes,
		FormNumber:         b.FormNumber,
		AutoGenerateNumber: b.AutoGenerateNumber,
		RemoveDocuments:    b.RemoveDocuments,
		ActionID:           b.ActionID,
		ActionResult:       resultText(b.ActionResult),
	}
	if formID != 0 {
		req.TemplateID = 0
	}
	for name, v := range b.Answers {
		if values := answerValues(v); len(values) > 0 {
			req.Answers[name] = values
		}
	}
	for _, d := range b.Documents {
		req.Documents = append(req.Documents, service.DocumentUpload{
			Name:           d.Name,
			Data:           d.Data,
			URL:            d.URL,
			DocumentTypeID: d.DocumentTypeID,
			DisplayOrder:   d.DisplayOrder,
		})
	}
	return req
}

func (a *API) listTemplates(c *gin.Context) {
	templates, err := a.forms.AvailableTemplates(c.Request.Context(), userID(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (a *API) previewNumber(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	number, err := a.forms.PreviewNumber(c.Request.Context(), userID(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"template_id": id, "number": number, "enabled": number != ""})
}

func (a *API) currentNumbers(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	numbers, err := a.forms.CurrentNumbers(c.Request.Context(), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, numbers)
}

func (a *API) createForm(c *gin.Context) {
	var body submitBody
	if !a.bind(c, &body) {
		return
	}
	result, err := a.forms.Submit(c.Request.Context(), body.request(userID(c), 0))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (a *API) updateForm(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	var body submitBody
	if !a.bind(c, &body) {
		return
	}
	result, err := a.forms.Submit(c.Request.Context(), body.request(userID(c), id))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) formStatus(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	status, err := a.forms.Status(c.Request.Context(), userID(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) takeAction(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	var body struct {
		ActionID uint `json:"action_id"`
		Result   any  `json:"result"`
	}
	if !a.bind(c, &body) {
		return
	}
	result, err := a.forms.TakeAction(c.Request.Context(), service.ActionRequest{
		UserID:   userID(c),
		FormID:   id,
		ActionID: body.ActionID,
		Result:   resultText(body.Result),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) cancelForm(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength != 0 && !a.bind(c, &body) {
		return
	}
	form, err := a.forms.Cancel(c.Request.Context(), service.CancelRequest{UserID: userID(c), FormID: id, Reason: body.Reason})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

func (a *API) renderForm(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		a.fail(c, err)
		return
	}
	result, err := a.forms.Render(c.Request.Context(), userID(c), id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Header("X-Form-Pages", strconv.Itoa(result.Pages))
	c.Data(http.StatusOK, "application/pdf", result.PDF)
}
