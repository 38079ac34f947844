package numbering

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	apperrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/role"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

// DefaultTemplate renders the counter as a zero padded four digit number
const DefaultTemplate = `{{ printf "%04d" .CurrentNumber }}`

// Values are the variables available to a numbering template
type Values struct {
	Template       *model.Template
	User           *model.User
	NumberingGroup any
	CurrentNumber  int
}

// sampleUser is rendered against when validating a numbering template
var sampleUser = model.User{ID: 1, Username: "testy", FirstName: "Testy", LastName: "McTester", IsActive: true}

// Generator produces form numbers from a template's numbering configuration
type Generator struct {
	resolver role.Resolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewGenerator creates a generator that gates numbering through resolver
func NewGenerator(resolver role.Resolver, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// TemplateFuncs returns the sprig function map without the functions that
// read the process environment
func TemplateFuncs() template.FuncMap {
	funcs := sprig.TxtFuncMap()
	delete(funcs, "env")
	delete(funcs, "expandenv")
	return funcs
}

func (g *Generator) funcs() template.FuncMap {
	funcs := TemplateFuncs()
	funcs["pad"] = func(width, n int) string {
		return fmt.Sprintf("%0*d", width, n)
	}
	funcs["year"] = func() int {
		return g.now().Year()
	}
	return funcs
}

// Render evaluates a numbering template
func (g *Generator) Render(text string, values Values) (string, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("number").Funcs(g.funcs()).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, values); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Enabled reports whether the template generates numbers at all
func Enabled(tpl *model.Template) bool {
	return tpl != nil && tpl.Numbering != nil && tpl.Numbering.Enabled
}

// Automatic reports whether numbers are generated on creation without a role gate
func Automatic(tpl *model.Template) bool {
	return Enabled(tpl) && strings.TrimSpace(tpl.Numbering.Role) == ""
}

// CanGenerate reports whether user may obtain a number for the template.
// A blank role lets everyone generate.
func (g *Generator) CanGenerate(ctx context.Context, user *model.User, tpl *model.Template) bool {
	if !Enabled(tpl) {
		return false
	}
	r, err := role.Parse(tpl.Numbering.Role)
	if err != nil {
		g.logger.Warn("invalid numbering role",
			zap.Uint("template_id", tpl.ID),
			zap.String("role", tpl.Numbering.Role),
			zap.Error(err))
		return false
	}
	if r.IsZero() {
		return true
	}
	return g.resolver.Satisfies(ctx, r, user)
}

// Key returns the sequence key used for user on tpl
func Key(user *model.User, tpl *model.Template) store.SequenceKey {
	key := store.SequenceKey{TemplateID: tpl.ID}
	if tpl.Numbering == nil {
		return key
	}
	if tpl.Numbering.NumberingGroup != nil {
		g := *tpl.Numbering.NumberingGroup
		key.Group = &g
	}
	if tpl.Numbering.PerUser && user != nil {
		id := user.ID
		key.UserID = &id
	}
	return key
}

// NextNumber returns the next form number for user. ok is false when the
// template has numbering disabled or the user lacks the numbering role. The
// counter is only advanced when persist is true.
func (g *Generator) NextNumber(ctx context.Context, tx store.Tx, user *model.User, tpl *model.Template, persist bool) (number string, ok bool, err error) {
	if !g.CanGenerate(ctx, user, tpl) {
		return "", false, nil
	}

	current, err := tx.ReadAndIncrement(ctx, Key(user, tpl), persist)
	if err != nil {
		return "", false, err
	}

	number, err = g.Render(tpl.Numbering.Template, g.values(tpl, user, current))
	if err != nil {
		return "", false, apperrors.Wrap(err, apperrors.CategoryInternal, "failed to render form number").
			WithTextCode("NUMBER_RENDER_FAILED").
			WithMetadata(map[string]any{"template_id": tpl.ID})
	}

	g.logger.Debug("form number generated",
		zap.Uint("template_id", tpl.ID),
		zap.Int("current_number", current),
		zap.Bool("persisted", persist),
		zap.String("number", number))
	return number, true, nil
}

func (g *Generator) values(tpl *model.Template, user *model.User, current int) Values {
	var group any = ""
	if tpl.Numbering != nil && tpl.Numbering.NumberingGroup != nil {
		group = *tpl.Numbering.NumberingGroup
	}
	return Values{Template: tpl, User: user, NumberingGroup: group, CurrentNumber: current}
}

// Validate checks a numbering configuration by rendering it for a sample user
func (g *Generator) Validate(n *model.AutomaticNumbering, tpl *model.Template) error {
	if n == nil {
		return nil
	}
	var fields []apperrors.FieldError
	if _, err := role.Parse(n.Role); err != nil {
		fields = append(fields, apperrors.FieldError{Field: "role", Message: err.Error(), Value: n.Role})
	}

	sampleTpl := model.Template{Name: "sample"}
	if tpl != nil {
		sampleTpl = *tpl
	}
	sampleTpl.Numbering = n
	user := sampleUser
	if _, err := g.Render(n.Template, g.values(&sampleTpl, &user, 1)); err != nil {
		fields = append(fields, apperrors.FieldError{Field: "template", Message: err.Error(), Value: n.Template})
	}

	if len(fields) > 0 {
		return apperrors.NewValidation("invalid automatic numbering", fields...)
	}
	return nil
}
