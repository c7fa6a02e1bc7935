package store

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"chatapp-client/internal/apperr"
	"chatapp-client/internal/models"
	"chatapp-client/internal/snowflake"
	"chatapp-client/internal/validator"
)

func (s *Store) CreateAccount(ctx context.Context, email string, username string, displayName string, password string) (models.UserProfile, error) {
	if err := validator.Username(username); err != nil {
		return models.UserProfile{}, err
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email = ? OR username = ?)", email, username).Scan(&exists)
	if err != nil {
		return models.UserProfile{}, err
	}
	if exists {
		return models.UserProfile{}, apperr.ErrConflict
	}

	userID, err := snowflake.Generate()
	if err != nil {
		return models.UserProfile{}, err
	}

	passwordBytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return models.UserProfile{}, err
	}

	user := models.UserProfile{
		ID:          userID,
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		Password:    passwordBytes,
	}

	_, err = s.db.ExecContext(ctx, "INSERT INTO users (id, email, username, display_name, avatar_url, password) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Username, user.DisplayName, user.AvatarURL, user.Password)
	if err != nil {
		return models.UserProfile{}, err
	}

	s.sugar.Debugf("Created account for user ID [%d]", user.ID)
	return user, nil
}

// Authenticate verifies credentials, returning apperr.ErrNotAuthenticated
// for both unknown emails and wrong passwords.
func (s *Store) Authenticate(ctx context.Context, email string, password string) (models.UserProfile, error) {
	var user models.UserProfile
	err := s.db.QueryRowContext(ctx, "SELECT id, email, username, display_name, avatar_url, password FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Email, &user.Username, &user.DisplayName, &user.AvatarURL, &user.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserProfile{}, apperr.ErrNotAuthenticated
		}
		return models.UserProfile{}, err
	}

	err = bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return models.UserProfile{}, apperr.ErrNotAuthenticated
	}

	user.Password = nil
	return user, nil
}

func (s *Store) User(ctx context.Context, userID int64) (models.UserProfile, error) {
	var user models.UserProfile
	err := s.db.QueryRowContext(ctx, "SELECT id, username, display_name, avatar_url FROM users WHERE id = ?", userID).
		Scan(&user.ID, &user.Username, &user.DisplayName, &user.AvatarURL)
	if err != nil {
		return models.UserProfile{}, notFound(err)
	}
	return user, nil
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", userID).Scan(&exists)
	return exists, err
}

func (s *Store) UpdateProfile(ctx context.Context, userID int64, displayName string, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE users SET display_name = ?, avatar_url = ? WHERE id = ?", displayName, avatarURL, userID)
	return err
}
