package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/librarian/internal/models"
)

func TestSessionStoreReturnsCopies(t *testing.T) {
	s := New()
	s.Set("a", &models.EditSession{ID: "a", Dirty: models.NewFieldSet(models.FieldTitle)})

	got, ok := s.Get("a")
	require.True(t, ok)
	got.Draft.Title = "changed"
	got.Dirty.Add(models.FieldOwner)

	again, _ := s.Get("a")
	assert.Empty(t, again.Draft.Title)
	assert.False(t, again.Dirty.Has(models.FieldOwner))
}

func TestSessionStoreUpdate(t *testing.T) {
	s := New()
	s.Set("a", &models.EditSession{ID: "a"})

	updated, ok, err := s.Update("a", func(es *models.EditSession) error {
		es.Generation++
		return nil
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(1), updated.Generation)

	boom := errors.New("boom")
	current, ok, err := s.Update("a", func(es *models.EditSession) error {
		es.Generation = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), current.Generation)

	_, ok, err = s.Update("missing", func(*models.EditSession) error { return nil })
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestSessionStoreGetAllOrdered(t *testing.T) {
	s := New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.Set("late", &models.EditSession{ID: "late", CreatedAt: base.Add(time.Minute)})
	s.Set("early", &models.EditSession{ID: "early", CreatedAt: base})

	all := s.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "early", all[0].ID)
	assert.Equal(t, "late", all[1].ID)

	s.Delete("early")
	assert.Len(t, s.GetAll(), 1)
}
