package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sivanpabraj/studio-m/internal/model"
	"github.com/sivanpabraj/studio-m/internal/repository"
)

// DraftTTL — срок жизни черновика по умолчанию.
const DraftTTL = 24 * time.Hour

// DraftStore — операции хранилища, нужные менеджеру черновиков.
type DraftStore interface {
	SaveDraft(ctx context.Context, actorID int64, fields []byte, state string) error
	LoadDraft(ctx context.Context, actorID int64) (*model.Draft, error)
	DeleteDraft(ctx context.Context, actorID int64) error
}

// DraftManager сохраняет снимок сессии после каждого записанного поля и
// восстанавливает его при возвращении актора. Просроченный черновик
// удаляется при первой же попытке загрузки.
type DraftManager struct {
	store DraftStore
	ttl   time.Duration
	now   func() time.Time
}

// NewDraftManager создаёт менеджер черновиков. ttl <= 0 заменяется на DraftTTL.
func NewDraftManager(store DraftStore, ttl time.Duration) *DraftManager {
	if ttl <= 0 {
		ttl = DraftTTL
	}
	return &DraftManager{store: store, ttl: ttl, now: time.Now}
}

// Save сериализует поля сессии и записывает черновик поверх предыдущего.
func (m *DraftManager) Save(ctx context.Context, actorID int64, f *Fields, state State) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal draft fields: %w", err)
	}
	return m.store.SaveDraft(ctx, actorID, raw, string(state))
}

// Load возвращает сохранённый черновик актора. Отсутствующий, просроченный
// или повреждённый черновик даёт (nil, "", nil); просроченный и повреждённый
// при этом удаляются из хранилища.
func (m *DraftManager) Load(ctx context.Context, actorID int64) (*Fields, State, error) {
	draft, err := m.store.LoadDraft(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrDraftNotFound) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if m.now().Sub(draft.SavedAt) > m.ttl {
		_ = m.store.DeleteDraft(ctx, actorID)
		return nil, "", nil
	}
	state := State(draft.State)
	var f Fields
	if !state.Known() || json.Unmarshal(draft.Fields, &f) != nil {
		_ = m.store.DeleteDraft(ctx, actorID)
		return nil, "", nil
	}
	return &f, state, nil
}

// Discard удаляет черновик актора.
func (m *DraftManager) Discard(ctx context.Context, actorID int64) error {
	if err := m.store.DeleteDraft(ctx, actorID); err != nil && !errors.Is(err, repository.ErrDraftNotFound) {
		return err
	}
	return nil
}
