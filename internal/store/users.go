package store

import (
	"errors"
	"fmt"

	"github.com/shipmatebot/shipmate/internal/models"
	"gorm.io/gorm"
)

// UserAvailable reports whether the user may execute commands. Unknown
// users are registered as unavailable and reported as such; the operator
// approves them later via the CLI or the HTTP API.
func (s *Store) UserAvailable(id int64, username string) (bool, error) {
	var user models.User
	err := s.db.First(&user, "id = ?", id).Error
	if err == nil {
		return user.Available, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("store: lookup user %d: %w", id, err)
	}

	user = models.User{ID: id, Username: username, Available: false}
	if err := s.db.Create(&user).Error; err != nil {
		return false, fmt.Errorf("store: register user %d: %w", id, err)
	}
	return false, nil
}

// Users returns all known users.
func (s *Store) Users() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return users, nil
}

// SetUserAvailable flips a user's availability flag.
func (s *Store) SetUserAvailable(id int64, available bool) error {
	result := s.db.Model(&models.User{}).Where("id = ?", id).
		Update("available", available)
	if result.Error != nil {
		return fmt.Errorf("store: update user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: user %d not found", id)
	}
	return nil
}

// DeleteUser removes a user from the allow-list.
func (s *Store) DeleteUser(id int64) error {
	result := s.db.Delete(&models.User{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("store: delete user %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: user %d not found", id)
	}
	return nil
}
