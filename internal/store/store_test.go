package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
)

func intPtr(i int) *int { return &i }

func uintPtr(u uint) *uint { return &u }

func strPtr(s string) *string { return &s }

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	s, err := NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func seedTemplate(t *testing.T, s Store) (*model.User, *model.Template) {
	t.Helper()
	ctx := context.Background()
	u := &model.User{Username: "creator", FirstName: "Ada", LastName: "Lovelace", IsActive: true}
	require.NoError(t, s.SaveUser(ctx, u))
	tpl := &model.Template{
		Name:    "Purchase request",
		Enabled: true,
		Actions: []model.Action{
			{Type: model.ActionApproval, Rank: 2, Role: "is_staff"},
			{Type: model.ActionAcknowledgment, Rank: 1, Role: "is_staff"},
		},
		Columns: []model.DisplayColumn{
			{FieldName: "vendor", DisplayOrder: 2},
			{FieldName: "amount", DisplayOrder: 1},
		},
	}
	require.NoError(t, s.SaveTemplate(ctx, tpl))
	return u, tpl
}

func TestSequenceKey_String(t *testing.T) {
	assert.Equal(t, "t3", SequenceKey{TemplateID: 3}.String())
	assert.Equal(t, "t3_g2024", SequenceKey{TemplateID: 3, Group: intPtr(2024)}.String())
	assert.Equal(t, "t3_u9", SequenceKey{TemplateID: 3, UserID: uintPtr(9)}.String())
	assert.Equal(t, "t3_g1_u9", SequenceKey{TemplateID: 3, Group: intPtr(1), UserID: uintPtr(9)}.String())
}

func TestStore_ReadAndIncrement(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		key := SequenceKey{TemplateID: 1, Group: intPtr(2024), UserID: uintPtr(4)}

		preview, err := s.ReadAndIncrement(ctx, key, false)
		require.NoError(t, err)
		assert.Equal(t, 1, preview)

		// a preview never consumes a number
		preview, err = s.ReadAndIncrement(ctx, key, false)
		require.NoError(t, err)
		assert.Equal(t, 1, preview)

		for want := 1; want <= 3; want++ {
			got, err := s.ReadAndIncrement(ctx, key, true)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		other := SequenceKey{TemplateID: 1, Group: intPtr(2024), UserID: uintPtr(5)}
		got, err := s.ReadAndIncrement(ctx, other, true)
		require.NoError(t, err)
		assert.Equal(t, 1, got)

		seqs, err := s.ListSequences(ctx, 1)
		require.NoError(t, err)
		require.Len(t, seqs, 2)
		assert.Equal(t, "t1_g2024_u4", seqs[0].Key)
		assert.Equal(t, 3, seqs[0].Value)
	})
}

func TestStore_TemplateRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, tpl := seedTemplate(t, s)

		got, err := s.GetTemplate(ctx, tpl.ID)
		require.NoError(t, err)
		require.Len(t, got.Actions, 2)
		assert.Equal(t, 1, got.Actions[0].Rank)
		assert.Equal(t, 2, got.Actions[1].Rank)
		require.Len(t, got.Columns, 2)
		assert.Equal(t, "amount", got.Columns[0].FieldName)
		assert.Equal(t, "vendor", got.Columns[1].FieldName)

		all, err := s.ListTemplates(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 1, all[0].Actions[0].Rank)

		_, err = s.GetTemplate(ctx, 9999)
		assert.True(t, IsNotFound(err))
	})
}

func TestStore_RecordsAreUniquePerRank(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u, tpl := seedTemplate(t, s)

		form := &model.Form{CreatorID: u.ID, TemplateID: tpl.ID, Status: model.StatusPending}
		require.NoError(t, s.SaveForm(ctx, form))

		rec := &model.ActionRecord{FormID: form.ID, ActionType: model.ActionAcknowledgment, ActionRank: 1, ActorID: u.ID, Time: time.Now()}
		require.NoError(t, s.CreateRecord(ctx, rec))

		again := &model.ActionRecord{FormID: form.ID, ActionType: model.ActionAcknowledgment, ActionRank: 1, ActorID: u.ID, Time: time.Now()}
		err := s.CreateRecord(ctx, again)
		assert.True(t, IsDuplicate(err), "got %v", err)

		got, err := s.GetForm(ctx, form.ID)
		require.NoError(t, err)
		require.Len(t, got.Records, 1)
		require.NotNil(t, got.Records[0].Actor)
		assert.Equal(t, "Ada Lovelace", got.Records[0].Actor.DisplayName())
		require.NotNil(t, got.Creator)
	})
}

func TestStore_FormNumberUnique(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u, tpl := seedTemplate(t, s)

		first := &model.Form{CreatorID: u.ID, TemplateID: tpl.ID, Status: model.StatusPending, FormNumber: strPtr("0001")}
		require.NoError(t, s.SaveForm(ctx, first))

		exists, err := s.FormNumberExists(ctx, "0001", 0)
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = s.FormNumberExists(ctx, "0001", first.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		second := &model.Form{CreatorID: u.ID, TemplateID: tpl.ID, Status: model.StatusPending, FormNumber: strPtr("0001")}
		assert.True(t, IsDuplicate(s.SaveForm(ctx, second)))
	})
}

func TestStore_TransactionRollback(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u, tpl := seedTemplate(t, s)
		boom := errors.New("boom")
		key := SequenceKey{TemplateID: tpl.ID}

		err := s.RunInTransaction(ctx, func(tx Tx) error {
			if _, err := tx.ReadAndIncrement(ctx, key, true); err != nil {
				return err
			}
			form := &model.Form{CreatorID: u.ID, TemplateID: tpl.ID, Status: model.StatusPending}
			if err := tx.SaveForm(ctx, form); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		forms, err := s.ListForms(ctx, tpl.ID)
		require.NoError(t, err)
		assert.Empty(t, forms)

		next, err := s.ReadAndIncrement(ctx, key, false)
		require.NoError(t, err)
		assert.Equal(t, 1, next, "rolled back increment must not consume a number")
	})
}

func TestStore_Notifications(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		u, tpl := seedTemplate(t, s)
		form := &model.Form{CreatorID: u.ID, TemplateID: tpl.ID, Status: model.StatusPending}
		require.NoError(t, s.SaveForm(ctx, form))

		exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
		created, err := s.GetOrCreateNotification(ctx, &model.Notification{UserID: u.ID, FormID: form.ID, Kind: "customforms", Expiration: exp})
		require.NoError(t, err)
		assert.True(t, created)

		created, err = s.GetOrCreateNotification(ctx, &model.Notification{UserID: u.ID, FormID: form.ID, Kind: "customforms", Expiration: exp.Add(time.Hour)})
		require.NoError(t, err)
		assert.False(t, created)

		list, err := s.ListNotifications(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.NotEmpty(t, list[0].ID)

		n, err := s.DeleteNotificationsForForm(ctx, form.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestMemoryStore_ConcurrentIncrements(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := SequenceKey{TemplateID: 1}

	const workers = 20
	results := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunInTransaction(ctx, func(tx Tx) error {
				n, err := tx.ReadAndIncrement(ctx, key, true)
				if err == nil {
					results <- n
				}
				return err
			})
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for n := range results {
		assert.False(t, seen[n], "number %d handed out twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
}

func TestGormStore_ConcurrentIncrements(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "sequences.db") + "?_busy_timeout=10000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	s, err := NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	key := SequenceKey{TemplateID: 1, Group: intPtr(2025)}

	const workers = 20
	results := make(chan int, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RunInTransaction(ctx, func(tx Tx) error {
				n, err := tx.ReadAndIncrement(ctx, key, true)
				if err == nil {
					results <- n
				}
				return err
			})
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[int]bool)
	for n := range results {
		assert.False(t, seen[n], "number %d handed out twice", n)
		seen[n] = true
	}
	assert.Len(t, seen, workers)
	for n := 1; n <= workers; n++ {
		assert.True(t, seen[n], "number %d missing", n)
	}

	next, err := s.ReadAndIncrement(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, workers+1, next)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", nil)
	assert.Error(t, err)

	s, err := Open(DriverMemory, "", nil)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
