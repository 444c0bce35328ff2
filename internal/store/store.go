// Package store is the schedule store: persistence for users, treatment
// courses, pills, dose records, and the taken-history audit trail. It is
// the single source of truth for the scheduler; in-memory timers are only
// an optimization on top of it.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/soglom/pillbot/internal/model"
)

// ErrNotFound is returned when a referenced entity no longer exists.
var ErrNotFound = errors.New("store: not found")

// Store wraps the database handle with the schedule operations.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindOrCreateUser loads the user for a chat identity, creating it on
// first contact and touching last-active on every call.
func (s *Store) FindOrCreateUser(id int64, firstName string) (*model.User, error) {
	var user model.User
	err := s.db.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = model.User{
			ID:               id,
			FirstName:        firstName,
			Timezone:         "Asia/Tashkent",
			RemindersEnabled: true,
			FirstTime:        true,
			LastActive:       time.Now(),
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user %d: %w", id, err)
		}
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	user.LastActive = time.Now()
	if firstName != "" {
		user.FirstName = firstName
	}
	if err := s.db.Save(&user).Error; err != nil {
		return nil, fmt.Errorf("touch user %d: %w", id, err)
	}
	return &user, nil
}

// UserByID loads a user.
func (s *Store) UserByID(id int64) (*model.User, error) {
	var user model.User
	if err := s.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser applies the given column updates.
func (s *Store) UpdateUser(id int64, updates map[string]any) error {
	res := s.db.Model(&model.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
