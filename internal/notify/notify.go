// Package notify keeps per-user form notifications and composes the emails
// sent when forms move through their workflow.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/usnistgov/NEMO-custom-forms/internal/model"
	"github.com/usnistgov/NEMO-custom-forms/internal/store"
)

// KindCustomForm is the notification kind used for forms awaiting action
const KindCustomForm = "custom_form"

// DefaultExpiry is how long a form notification stays visible
const DefaultExpiry = 30 * 24 * time.Hour

// Notifier creates and removes the notifications attached to forms
type Notifier struct {
	expiry time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier creates a notifier. A non-positive expiry uses DefaultExpiry.
func NewNotifier(expiry time.Duration, logger *zap.Logger) *Notifier {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{expiry: expiry, logger: logger, now: time.Now}
}

// Recipients returns the users to notify about form: the next action
// candidates plus the creator while the form is unfinished, without the
// user who last updated it
func Recipients(form *model.Form, candidates []model.User) []model.User {
	seen := make(map[uint]bool, len(candidates)+1)
	var out []model.User
	add := func(u model.User) {
		if u.ID == 0 || seen[u.ID] || (form.LastUpdatedByID != 0 && u.ID == form.LastUpdatedByID) {
			return
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	for _, u := range candidates {
		add(u)
	}
	if !form.Status.Finished() && !form.Cancelled {
		if form.Creator != nil {
			add(*form.Creator)
		} else {
			add(model.User{ID: form.CreatorID})
		}
	}
	return out
}

// CreateForForm notifies the form's recipients. Existing notifications for
// the same user and form are kept and their expiration refreshed.
func (n *Notifier) CreateForForm(ctx context.Context, tx store.Tx, form *model.Form, candidates []model.User) (int, error) {
	expiration := n.now().Add(n.expiry)
	created := 0
	for _, u := range Recipients(form, candidates) {
		ok, err := tx.GetOrCreateNotification(ctx, &model.Notification{
			UserID:     u.ID,
			FormID:     form.ID,
			Kind:       KindCustomForm,
			Expiration: expiration,
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	n.logger.Debug("form notifications created",
		zap.Uint("form_id", form.ID),
		zap.Int("created", created))
	return created, nil
}

// DeleteForForm removes every notification attached to the form
func (n *Notifier) DeleteForForm(ctx context.Context, tx store.Tx, formID uint) error {
	count, err := tx.DeleteNotificationsForForm(ctx, formID)
	if err != nil {
		return err
	}
	n.logger.Debug("form notifications deleted",
		zap.Uint("form_id", formID),
		zap.Int("deleted", count))
	return nil
}
