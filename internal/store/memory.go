package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
)

// MemoryStore is a thread-safe in-memory Store. Transactions run against a
// cloned state that replaces the live state only when the callback succeeds.
type MemoryStore struct {
	*memoryTx
	mu sync.Mutex
}

// NewMemoryStore constructs an empty store
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.memoryTx = &memoryTx{st: newMemState(), mu: &s.mu}
	return s
}

// RunInTransaction implements Store
func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if fn == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{st: s.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	*s.st = *tx.st
	return nil
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return nil
}

type memState struct {
	nextID        uint
	users         map[uint]model.User
	templates     map[uint]model.Template
	forms         map[uint]model.Form
	records       map[uint]model.ActionRecord
	documents     map[uint]model.Document
	notifications map[string]model.Notification
	sequences     map[string]model.NumberSequence
}

func newMemState() *memState {
	return &memState{
		users:         make(map[uint]model.User),
		templates:     make(map[uint]model.Template),
		forms:         make(map[uint]model.Form),
		records:       make(map[uint]model.ActionRecord),
		documents:     make(map[uint]model.Document),
		notifications: make(map[string]model.Notification),
		sequences:     make(map[string]model.NumberSequence),
	}
}

func (st *memState) clone() *memState {
	out := &memState{nextID: st.nextID}
	out.users = cloneMap(st.users)
	out.templates = cloneMap(st.templates)
	out.forms = cloneMap(st.forms)
	out.records = cloneMap(st.records)
	out.documents = cloneMap(st.documents)
	out.notifications = cloneMap(st.notifications)
	out.sequences = cloneMap(st.sequences)
	return out
}

func (st *memState) newID() uint {
	st.nextID++
	return st.nextID
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// memoryTx operates on a state. Outside a transaction mu guards every call;
// inside one the owning transaction already holds the lock and mu is nil.
type memoryTx struct {
	st *memState
	mu *sync.Mutex
}

func (t *memoryTx) lock() func() {
	if t.mu == nil {
		return func() {}
	}
	t.mu.Lock()
	return t.mu.Unlock
}

func cloneUser(u model.User) model.User {
	u.Groups = append([]model.Group(nil), u.Groups...)
	for i := range u.Groups {
		u.Groups[i].Permissions = append([]string(nil), u.Groups[i].Permissions...)
	}
	u.Permissions = append([]string(nil), u.Permissions...)
	return u
}

func cloneTemplate(t model.Template) model.Template {
	t.PDF = append([]byte(nil), t.PDF...)
	t.CreateRoles = append([]string(nil), t.CreateRoles...)
	t.ViewAllRoles = append([]string(nil), t.ViewAllRoles...)
	t.ApproveRoles = append([]string(nil), t.ApproveRoles...)
	if t.Numbering != nil {
		n := *t.Numbering
		t.Numbering = &n
	}
	actions := make([]model.Action, len(t.Actions))
	for i, a := range t.Actions {
		a.CC = append([]string(nil), a.CC...)
		actions[i] = a
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Rank < actions[j].Rank })
	t.Actions = actions
	mappings := make([]model.SpecialMapping, len(t.Mappings))
	for i, m := range t.Mappings {
		m.Action = nil
		mappings[i] = m
	}
	t.Mappings = mappings
	columns := append([]model.DisplayColumn(nil), t.Columns...)
	sort.SliceStable(columns, func(i, j int) bool { return columns[i].DisplayOrder < columns[j].DisplayOrder })
	t.Columns = columns
	return t
}

func (t *memoryTx) GetUser(_ context.Context, id uint) (*model.User, error) {
	defer t.lock()()
	u, ok := t.st.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	u = cloneUser(u)
	return &u, nil
}

func (t *memoryTx) ListUsers(_ context.Context) ([]model.User, error) {
	defer t.lock()()
	out := make([]model.User, 0, len(t.st.users))
	for _, u := range t.st.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) SaveUser(_ context.Context, user *model.User) error {
	defer t.lock()()
	for id, u := range t.st.users {
		if u.Username == user.Username && id != user.ID {
			return duplicate("user", nil)
		}
	}
	if user.ID == 0 {
		user.ID = t.st.newID()
	}
	t.st.users[user.ID] = cloneUser(*user)
	return nil
}

func (t *memoryTx) GetTemplate(_ context.Context, id uint) (*model.Template, error) {
	defer t.lock()()
	tpl, ok := t.st.templates[id]
	if !ok {
		return nil, notFound("template", id)
	}
	tpl = cloneTemplate(tpl)
	return &tpl, nil
}

func (t *memoryTx) ListTemplates(_ context.Context) ([]model.Template, error) {
	defer t.lock()()
	out := make([]model.Template, 0, len(t.st.templates))
	for _, tpl := range t.st.templates {
		out = append(out, cloneTemplate(tpl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memoryTx) SaveTemplate(_ context.Context, tpl *model.Template) error {
	defer t.lock()()
	for id, other := range t.st.templates {
		if other.Name == tpl.Name && id != tpl.ID {
			return duplicate("template", nil)
		}
	}

	ranks := make(map[int]bool, len(tpl.Actions))
	for _, a := range tpl.Actions {
		if ranks[a.Rank] {
			return duplicate("action rank", nil)
		}
		ranks[a.Rank] = true
	}
	orders := make(map[int]bool, len(tpl.Columns))
	for _, c := range tpl.Columns {
		if orders[c.DisplayOrder] {
			return duplicate("display order", nil)
		}
		orders[c.DisplayOrder] = true
	}

	now := time.Now()
	if tpl.ID == 0 {
		tpl.ID = t.st.newID()
		tpl.CreatedAt = now
	}
	tpl.UpdatedAt = now

	if tpl.Numbering != nil {
		if tpl.Numbering.ID == 0 {
			tpl.Numbering.ID = t.st.newID()
		}
		tpl.Numbering.TemplateID = tpl.ID
	}
	for i := range tpl.Actions {
		if tpl.Actions[i].ID == 0 {
			tpl.Actions[i].ID = t.st.newID()
		}
		tpl.Actions[i].TemplateID = tpl.ID
	}
	for i := range tpl.Mappings {
		if tpl.Mappings[i].ID == 0 {
			tpl.Mappings[i].ID = t.st.newID()
		}
		tpl.Mappings[i].TemplateID = tpl.ID
		if tpl.Mappings[i].Action != nil && tpl.Mappings[i].ActionID == nil {
			id := tpl.Mappings[i].Action.ID
			tpl.Mappings[i].ActionID = &id
		}
	}
	for i := range tpl.Columns {
		if tpl.Columns[i].ID == 0 {
			tpl.Columns[i].ID = t.st.newID()
		}
		tpl.Columns[i].TemplateID = tpl.ID
	}

	t.st.templates[tpl.ID] = cloneTemplate(*tpl)
	return nil
}

func (t *memoryTx) DeleteTemplate(_ context.Context, id uint) error {
	defer t.lock()()
	if _, ok := t.st.templates[id]; !ok {
		return notFound("template", id)
	}
	for formID, f := range t.st.forms {
		if f.TemplateID == id {
			t.st.deleteForm(formID)
		}
	}
	delete(t.st.templates, id)
	return nil
}

func (t *memoryTx) GetForm(_ context.Context, id uint) (*model.Form, error) {
	defer t.lock()()
	f, ok := t.st.forms[id]
	if !ok {
		return nil, notFound("form", id)
	}
	f = t.st.assembleForm(f)
	return &f, nil
}

func (st *memState) assembleForm(f model.Form) model.Form {
	if f.FormNumber != nil {
		n := *f.FormNumber
		f.FormNumber = &n
	}
	if creator, ok := st.users[f.CreatorID]; ok {
		c := cloneUser(creator)
		f.Creator = &c
	}
	f.Records = st.formRecords(f.ID)
	f.Documents = st.formDocuments(f.ID)
	return f
}

func (st *memState) formRecords(formID uint) []model.ActionRecord {
	var out []model.ActionRecord
	for _, r := range st.records {
		if r.FormID != formID {
			continue
		}
		if actor, ok := st.users[r.ActorID]; ok {
			a := cloneUser(actor)
			r.Actor = &a
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionRank < out[j].ActionRank })
	return out
}

func (st *memState) formDocuments(formID uint) []model.Document {
	var out []model.Document
	for _, d := range st.documents {
		if d.FormID == formID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (t *memoryTx) ListForms(_ context.Context, templateID uint) ([]model.Form, error) {
	defer t.lock()()
	var out []model.Form
	for _, f := range t.st.forms {
		if templateID == 0 || f.TemplateID == templateID {
			out = append(out, t.st.assembleForm(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) SaveForm(_ context.Context, form *model.Form) error {
	defer t.lock()()
	if form.FormNumber != nil {
		for id, other := range t.st.forms {
			if id != form.ID && other.FormNumber != nil && *other.FormNumber == *form.FormNumber {
				return duplicate("form number", nil)
			}
		}
	}
	if _, ok := t.st.templates[form.TemplateID]; !ok {
		return notFound("template", form.TemplateID)
	}
	if form.ID == 0 {
		form.ID = t.st.newID()
		if form.CreatedAt.IsZero() {
			form.CreatedAt = time.Now()
		}
	}

	stored := *form
	if stored.FormNumber != nil {
		n := *stored.FormNumber
		stored.FormNumber = &n
	}
	stored.Creator = nil
	stored.Template = nil
	stored.Records = nil
	stored.Documents = nil
	t.st.forms[form.ID] = stored
	return nil
}

func (t *memoryTx) DeleteForm(_ context.Context, id uint) error {
	defer t.lock()()
	if _, ok := t.st.forms[id]; !ok {
		return notFound("form", id)
	}
	t.st.deleteForm(id)
	return nil
}

func (st *memState) deleteForm(id uint) {
	for rid, r := range st.records {
		if r.FormID == id {
			delete(st.records, rid)
		}
	}
	for did, d := range st.documents {
		if d.FormID == id {
			delete(st.documents, did)
		}
	}
	for nid, n := range st.notifications {
		if n.FormID == id {
			delete(st.notifications, nid)
		}
	}
	delete(st.forms, id)
}

func (t *memoryTx) FormNumberExists(_ context.Context, number string, excludeFormID uint) (bool, error) {
	defer t.lock()()
	for id, f := range t.st.forms {
		if id != excludeFormID && f.FormNumber != nil && *f.FormNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CreateRecord(_ context.Context, record *model.ActionRecord) error {
	defer t.lock()()
	if _, ok := t.st.forms[record.FormID]; !ok {
		return notFound("form", record.FormID)
	}
	for _, r := range t.st.records {
		if r.FormID == record.FormID && r.ActionType == record.ActionType && r.ActionRank == record.ActionRank {
			return duplicate("action record", nil)
		}
	}
	record.ID = t.st.newID()
	stored := *record
	stored.Actor = nil
	t.st.records[record.ID] = stored
	return nil
}

func (t *memoryTx) ListRecords(_ context.Context, formID uint) ([]model.ActionRecord, error) {
	defer t.lock()()
	return t.st.formRecords(formID), nil
}

func (t *memoryTx) ReadAndIncrement(_ context.Context, key SequenceKey, persist bool) (int, error) {
	defer t.lock()()
	k := key.String()
	next := 1
	if seq, ok := t.st.sequences[k]; ok {
		next = seq.Value + 1
	}
	if persist {
		t.st.sequences[k] = key.sequence(next)
	}
	return next, nil
}

func (t *memoryTx) ListSequences(_ context.Context, templateID uint) ([]model.NumberSequence, error) {
	defer t.lock()()
	var out []model.NumberSequence
	for _, seq := range t.st.sequences {
		if seq.TemplateID == templateID {
			out = append(out, seq)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (t *memoryTx) SaveDocument(_ context.Context, doc *model.Document) error {
	defer t.lock()()
	if _, ok := t.st.forms[doc.FormID]; !ok {
		return notFound("form", doc.FormID)
	}
	if doc.ID == 0 {
		doc.ID = t.st.newID()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now()
	}
	t.st.documents[doc.ID] = *doc
	return nil
}

func (t *memoryTx) DeleteDocument(_ context.Context, id uint) error {
	defer t.lock()()
	if _, ok := t.st.documents[id]; !ok {
		return notFound("document", id)
	}
	delete(t.st.documents, id)
	return nil
}

func (t *memoryTx) ListDocuments(_ context.Context, formID uint) ([]model.Document, error) {
	defer t.lock()()
	return t.st.formDocuments(formID), nil
}

func (t *memoryTx) GetOrCreateNotification(_ context.Context, n *model.Notification) (bool, error) {
	defer t.lock()()
	for id, existing := range t.st.notifications {
		if existing.UserID == n.UserID && existing.FormID == n.FormID {
			existing.Expiration = n.Expiration
			existing.Kind = n.Kind
			t.st.notifications[id] = existing
			*n = existing
			return false, nil
		}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	t.st.notifications[n.ID] = *n
	return true, nil
}

func (t *memoryTx) DeleteNotificationsForForm(_ context.Context, formID uint) (int, error) {
	defer t.lock()()
	count := 0
	for id, n := range t.st.notifications {
		if n.FormID == formID {
			delete(t.st.notifications, id)
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) ListNotifications(_ context.Context, userID uint) ([]model.Notification, error) {
	defer t.lock()()
	var out []model.Notification
	for _, n := range t.st.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expiration.Before(out[j].Expiration) })
	return out, nil
}
