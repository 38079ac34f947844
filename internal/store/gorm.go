package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
)

// Supported store drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns a store for the given driver and migrates the schema
func Open(driver, dsn string, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	s, err := NewGormStore(db)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", zap.String("driver", driver))
	return s, nil
}

// GormStore is a Store backed by a gorm database
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and wraps db
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// RunInTransaction implements Store
func (s *GormStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if fn == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// Close implements Store
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error, kind string, id any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound(kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return duplicate(kind, err)
	default:
		return internal(err, fmt.Sprintf("%s query failed", kind))
	}
}

func orderBy(column string) clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: column}}
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	err := s.db.WithContext(ctx).Preload("Groups").First(&u, id).Error
	if err != nil {
		return nil, translate(err, "user", id)
	}
	return &u, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).Preload("Groups").Order(orderBy("id")).Find(&users).Error
	return users, translate(err, "user", nil)
}

func (s *GormStore) SaveUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(user).Error
	return translate(err, "user", user.ID)
}

func (s *GormStore) GetTemplate(ctx context.Context, id uint) (*model.Template, error) {
	var t model.Template
	err := s.templateQuery(ctx).First(&t, id).Error
	if err != nil {
		return nil, translate(err, "template", id)
	}
	return &t, nil
}

func (s *GormStore) templateQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Numbering").
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order(orderBy("rank")) }).
		Preload("Mappings").
		Preload("Columns", func(db *gorm.DB) *gorm.DB { return db.Order(orderBy("display_order")) })
}

func (s *GormStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	var templates []model.Template
	err := s.templateQuery(ctx).Order(orderBy("name")).Find(&templates).Error
	return templates, translate(err, "template", nil)
}

func (s *GormStore) SaveTemplate(ctx context.Context, t *model.Template) error {
	err := s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(t).Error
	return translate(err, "template", t.ID)
}

func (s *GormStore) DeleteTemplate(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	var formIDs []uint
	if err := db.Model(&model.Form{}).Where("template_id = ?", id).Pluck("id", &formIDs).Error; err != nil {
		return translate(err, "form", nil)
	}
	for _, formID := range formIDs {
		if err := s.deleteFormRows(db, formID); err != nil {
			return err
		}
	}
	for _, child := range []any{&model.SpecialMapping{}, &model.Action{}, &model.DisplayColumn{}, &model.AutomaticNumbering{}} {
		if err := db.Where("template_id = ?", id).Delete(child).Error; err != nil {
			return translate(err, "template", id)
		}
	}
	res := db.Delete(&model.Template{}, id)
	if res.Error != nil {
		return translate(res.Error, "template", id)
	}
	if res.RowsAffected == 0 {
		return notFound("template", id)
	}
	return nil
}

func (s *GormStore) formQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Creator").
		Preload("Records", func(db *gorm.DB) *gorm.DB { return db.Order(orderBy("action_rank")) }).
		Preload("Records.Actor").
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order(orderBy("display_order")).Order(orderBy("id")) }).
		Preload("Documents.DocumentType")
}

func (s *GormStore) GetForm(ctx context.Context, id uint) (*model.Form, error) {
	var f model.Form
	if err := s.formQuery(ctx).First(&f, id).Error; err != nil {
		return nil, translate(err, "form", id)
	}
	return &f, nil
}

func (s *GormStore) ListForms(ctx context.Context, templateID uint) ([]model.Form, error) {
	q := s.formQuery(ctx)
	if templateID != 0 {
		q = q.Where("template_id = ?", templateID)
	}
	var forms []model.Form
	err := q.Order(orderBy("id")).Find(&forms).Error
	return forms, translate(err, "form", nil)
}

func (s *GormStore) SaveForm(ctx context.Context, form *model.Form) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Save(form).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicate("form number", err)
	}
	return translate(err, "form", form.ID)
}

func (s *GormStore) DeleteForm(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&model.Form{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return translate(err, "form", id)
	}
	if count == 0 {
		return notFound("form", id)
	}
	return s.deleteFormRows(db, id)
}

func (s *GormStore) deleteFormRows(db *gorm.DB, id uint) error {
	for _, child := range []any{&model.ActionRecord{}, &model.Document{}, &model.Notification{}} {
		if err := db.Where("form_id = ?", id).Delete(child).Error; err != nil {
			return translate(err, "form", id)
		}
	}
	return translate(db.Delete(&model.Form{}, id).Error, "form", id)
}

func (s *GormStore) FormNumberExists(ctx context.Context, number string, excludeFormID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Form{}).
		Where("form_number = ? AND id <> ?", number, excludeFormID).
		Count(&count).Error
	if err != nil {
		return false, translate(err, "form", nil)
	}
	return count > 0, nil
}

func (s *GormStore) CreateRecord(ctx context.Context, record *model.ActionRecord) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(record).Error
	return translate(err, "action record", record.FormID)
}

func (s *GormStore) ListRecords(ctx context.Context, formID uint) ([]model.ActionRecord, error) {
	var records []model.ActionRecord
	err := s.db.WithContext(ctx).Preload("Actor").
		Where("form_id = ?", formID).
		Order(orderBy("action_rank")).
		Find(&records).Error
	return records, translate(err, "action record", formID)
}

// ReadAndIncrement increments in the database with an upsert so concurrent
// transactions on the same key never observe the same value.
func (s *GormStore) ReadAndIncrement(ctx context.Context, key SequenceKey, persist bool) (int, error) {
	db := s.db.WithContext(ctx)
	k := key.String()

	if !persist {
		var seq model.NumberSequence
		err := db.Where("seq_key = ?", k).Take(&seq).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 1, nil
		}
		if err != nil {
			return 0, translate(err, "sequence", k)
		}
		return seq.Value + 1, nil
	}

	seq := key.sequence(1)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seq_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value": gorm.Expr("number_sequences.value + 1"),
		}),
	}).Create(&seq).Error
	if err != nil {
		return 0, translate(err, "sequence", k)
	}

	var stored model.NumberSequence
	if err := db.Where("seq_key = ?", k).Take(&stored).Error; err != nil {
		return 0, translate(err, "sequence", k)
	}
	return stored.Value, nil
}

func (s *GormStore) ListSequences(ctx context.Context, templateID uint) ([]model.NumberSequence, error) {
	var seqs []model.NumberSequence
	err := s.db.WithContext(ctx).Where("template_id = ?", templateID).Order(orderBy("seq_key")).Find(&seqs).Error
	return seqs, translate(err, "sequence", nil)
}

func (s *GormStore) SaveDocument(ctx context.Context, doc *model.Document) error {
	err := s.db.WithContext(ctx).Omit("DocumentType").Save(doc).Error
	return translate(err, "document", doc.ID)
}

func (s *GormStore) DeleteDocument(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.Document{}, id)
	if res.Error != nil {
		return translate(res.Error, "document", id)
	}
	if res.RowsAffected == 0 {
		return notFound("document", id)
	}
	return nil
}

func (s *GormStore) ListDocuments(ctx context.Context, formID uint) ([]model.Document, error) {
	var docs []model.Document
	err := s.db.WithContext(ctx).Preload("DocumentType").
		Where("form_id = ?", formID).
		Order(orderBy("display_order")).Order(orderBy("id")).
		Find(&docs).Error
	return docs, translate(err, "document", formID)
}

func (s *GormStore) GetOrCreateNotification(ctx context.Context, n *model.Notification) (bool, error) {
	db := s.db.WithContext(ctx)
	var existing model.Notification
	err := db.Where("user_id = ? AND form_id = ?", n.UserID, n.FormID).Take(&existing).Error
	switch {
	case err == nil:
		existing.Expiration = n.Expiration
		existing.Kind = n.Kind
		if err := db.Save(&existing).Error; err != nil {
			return false, translate(err, "notification", existing.ID)
		}
		*n = existing
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		return true, translate(db.Create(n).Error, "notification", n.ID)
	default:
		return false, translate(err, "notification", nil)
	}
}

func (s *GormStore) DeleteNotificationsForForm(ctx context.Context, formID uint) (int, error) {
	res := s.db.WithContext(ctx).Where("form_id = ?", formID).Delete(&model.Notification{})
	if res.Error != nil {
		return 0, translate(res.Error, "notification", formID)
	}
	return int(res.RowsAffected), nil
}

func (s *GormStore) ListNotifications(ctx context.Context, userID uint) ([]model.Notification, error) {
	var out []model.Notification
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order(orderBy("expiration")).Find(&out).Error
	return out, translate(err, "notification", userID)
}
