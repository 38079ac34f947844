package workflow

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/role"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

// NotificationCleaner removes the notifications attached to a form
type NotificationCleaner interface {
	DeleteForForm(ctx context.Context, tx store.Tx, formID uint) error
}

// Engine drives forms through their template's ranked actions
type Engine struct {
	resolver role.Resolver
	cleaner  NotificationCleaner
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a workflow engine. cleaner may be nil.
func NewEngine(resolver role.Resolver, cleaner NotificationCleaner, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		resolver: resolver,
		cleaner:  cleaner,
		logger:   logger,
		now:      time.Now,
	}
}

// SortedActions returns the template's actions in execution order
func SortedActions(tpl *model.Template) []*model.Action {
	if tpl == nil {
		return nil
	}
	out := make([]*model.Action, 0, len(tpl.Actions))
	for i := range tpl.Actions {
		out = append(out, &tpl.Actions[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}

// PendingActions returns the actions with no record at their rank, in order
func PendingActions(tpl *model.Template, records []model.ActionRecord) []*model.Action {
	done := make(map[int]bool, len(records))
	for _, r := range records {
		done[r.ActionRank] = true
	}
	var pending []*model.Action
	for _, a := range SortedActions(tpl) {
		if !done[a.Rank] {
			pending = append(pending, a)
		}
	}
	return pending
}

// NextAction returns the lowest ranked action without a record, or nil when
// every action has been taken
func NextAction(tpl *model.Template, records []model.ActionRecord) *model.Action {
	pending := PendingActions(tpl, records)
	if len(pending) == 0 {
		return nil
	}
	return pending[0]
}

// NextAction returns the form's next action
func (e *Engine) NextAction(form *model.Form) *model.Action {
	return NextAction(form.Template, form.Records)
}

// CanTakeAction reports whether user may take action on form now
func (e *Engine) CanTakeAction(ctx context.Context, user *model.User, form *model.Form, action *model.Action) bool {
	if !form.Persisted() || form.Cancelled || form.Status.Finished() || action == nil || user == nil {
		return false
	}
	if user.ID == form.CreatorID && !action.SelfActionAllowed {
		return false
	}
	r, err := role.Parse(action.Role)
	if err != nil {
		e.logger.Warn("action has an invalid role",
			zap.Uint("form_id", form.ID),
			zap.Int("rank", action.Rank),
			zap.String("role", action.Role),
			zap.Error(err))
		return false
	}
	if r.IsZero() {
		return false
	}
	return e.resolver.Satisfies(ctx, r, user)
}

// CanTakeNextAction reports whether user may take the form's next action
func (e *Engine) CanTakeNextAction(ctx context.Context, user *model.User, form *model.Form) bool {
	return e.CanTakeAction(ctx, user, form, e.NextAction(form))
}

// ValidateRecord checks that a record may be written for action on form
func (e *Engine) ValidateRecord(form *model.Form, action *model.Action) error {
	if form.Cancelled {
		return errCancelled(form)
	}
	if form.Status.Finished() {
		return errFinished(form)
	}
	if action != nil && action.Type == model.ActionSetFormNumber && form.Number() == "" {
		return errNumberMissing(form)
	}
	return nil
}

// ParseResult converts a submitted action value into a tri-state result
func ParseResult(raw string) *bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	}
	return nil
}

func sameAction(a, b *model.Action) bool {
	if a == nil || b == nil {
		return false
	}
	if a.ID != 0 && b.ID != 0 {
		return a.ID == b.ID
	}
	return a.Rank == b.Rank && a.Type == b.Type
}

// ProcessAction records user taking action on form and advances its status.
// The form must be loaded with its template and records.
func (e *Engine) ProcessAction(ctx context.Context, tx store.Tx, user *model.User, form *model.Form, action *model.Action, rawResult string) (*model.ActionRecord, error) {
	if !sameAction(action, e.NextAction(form)) {
		return nil, errNotNextAction(form, action)
	}
	if !e.CanTakeAction(ctx, user, form, action) {
		return nil, errNotAllowed(form, user)
	}
	if err := e.ValidateRecord(form, action); err != nil {
		return nil, err
	}

	record := &model.ActionRecord{
		FormID:     form.ID,
		ActionType: action.Type,
		ActionRank: action.Rank,
		Time:       e.now(),
		ActorID:    user.ID,
		Result:     ParseResult(rawResult),
	}
	if action.Type == model.ActionSetFormNumber {
		record.Result = nil
	}
	if err := tx.CreateRecord(ctx, record); err != nil {
		return nil, err
	}
	record.Actor = user
	form.Records = append(form.Records, *record)

	status := form.Status
	remaining := PendingActions(form.Template, form.Records)
	switch {
	case record.Result != nil && !*record.Result:
		status = model.StatusDenied
	case len(remaining) == 0:
		status = model.StatusClosed
	case !hasApproval(remaining):
		status = model.StatusApproved
	}

	if status != form.Status {
		e.logger.Info("form status changed",
			zap.Uint("form_id", form.ID),
			zap.String("from", string(form.Status)),
			zap.String("to", string(status)),
			zap.Int("rank", action.Rank))
		form.Status = status
		if err := tx.SaveForm(ctx, form); err != nil {
			return nil, err
		}
	}
	return record, nil
}

func hasApproval(actions []*model.Action) bool {
	for _, a := range actions {
		if a.Type == model.ActionApproval {
			return true
		}
	}
	return false
}

// NextActionCandidates returns the users of the source able to take the
// form's next action. The creator is excluded unless the action allows self
// action.
func (e *Engine) NextActionCandidates(ctx context.Context, users role.UserSource, form *model.Form) ([]model.User, error) {
	if form.Cancelled {
		return nil, nil
	}
	action := e.NextAction(form)
	if action == nil {
		return nil, nil
	}
	r, err := role.Parse(action.Role)
	if err != nil || r.IsZero() {
		return nil, err
	}
	candidates, err := e.resolver.UsersSatisfying(ctx, users, r)
	if err != nil {
		return nil, err
	}
	if action.SelfActionAllowed {
		return candidates, nil
	}
	out := candidates[:0]
	for _, u := range candidates {
		if u.ID != form.CreatorID {
			out = append(out, u)
		}
	}
	return out, nil
}

// CanEdit reports whether user may change the form's answers
func (e *Engine) CanEdit(ctx context.Context, user *model.User, form *model.Form) bool {
	if user == nil || form.Cancelled || form.Status.Finished() {
		return false
	}
	if user.ID == form.CreatorID && len(form.Records) == 0 {
		return true
	}
	next := e.NextAction(form)
	return next != nil && next.CanEditForm && e.CanTakeAction(ctx, user, form, next)
}

// CanCancel reports whether user may cancel the form: its creator, a
// superuser or a holder of one of the template's approve roles
func (e *Engine) CanCancel(ctx context.Context, user *model.User, form *model.Form) bool {
	if user == nil || !form.Persisted() || form.Cancelled {
		return false
	}
	if user.ID == form.CreatorID || (user.IsSuperuser && user.IsActive) {
		return true
	}
	if form.Template == nil {
		return false
	}
	return role.SatisfiesAny(ctx, e.resolver, form.Template.ApproveRoles, user, e.logger)
}

// Cancel marks the form cancelled and removes its pending notifications.
// A cancelled form cannot be reopened.
func (e *Engine) Cancel(ctx context.Context, tx store.Tx, user *model.User, form *model.Form, reason string) error {
	if form.Cancelled {
		return errCancelled(form)
	}
	if !e.CanCancel(ctx, user, form) {
		return errNotAllowed(form, user)
	}

	now := e.now()
	id := user.ID
	form.Cancelled = true
	form.CancelledByID = &id
	form.CancellationTime = &now
	form.CancellationReason = strings.TrimSpace(reason)
	form.LastUpdated = now
	form.LastUpdatedByID = user.ID
	if err := tx.SaveForm(ctx, form); err != nil {
		return err
	}

	if e.cleaner != nil {
		if err := e.cleaner.DeleteForForm(ctx, tx, form.ID); err != nil {
			return err
		}
	}
	e.logger.Info("form cancelled",
		zap.Uint("form_id", form.ID),
		zap.Uint("user_id", user.ID))
	return nil
}

// Choice is one option offered to the user taking an action
type Choice struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// AvailableActionChoices lists the results an actor can pick for action
func AvailableActionChoices(action *model.Action) []Choice {
	if action == nil {
		return nil
	}
	switch action.Type {
	case model.ActionApproval:
		return []Choice{{Value: "true", Label: "Approve"}, {Value: "false", Label: "Deny"}}
	case model.ActionAcknowledgment:
		return []Choice{{Value: "true", Label: "Acknowledge"}}
	case model.ActionSetFormNumber:
		return []Choice{{Value: "", Label: "Set form number"}}
	}
	return nil
}

// CanView reports whether user may see the form
func (e *Engine) CanView(ctx context.Context, user *model.User, form *model.Form) bool {
	if user == nil {
		return false
	}
	if user.ID == form.CreatorID || (user.IsSuperuser && user.IsActive) {
		return true
	}
	for _, r := range form.Records {
		if r.ActorID == user.ID {
			return true
		}
	}
	if tpl := form.Template; tpl != nil {
		if role.SatisfiesAny(ctx, e.resolver, tpl.ViewAllRoles, user, e.logger) ||
			role.SatisfiesAny(ctx, e.resolver, tpl.ApproveRoles, user, e.logger) {
			return true
		}
	}
	return e.CanTakeNextAction(ctx, user, form)
}

// CanCreate reports whether user may submit a new form for tpl. Templates
// without create roles accept any active user.
func (e *Engine) CanCreate(ctx context.Context, user *model.User, tpl *model.Template) bool {
	if user == nil || tpl == nil || !tpl.Enabled || !user.IsActive {
		return false
	}
	if len(tpl.CreateRoles) == 0 {
		return true
	}
	return role.SatisfiesAny(ctx, e.resolver, tpl.CreateRoles, user, e.logger)
}
