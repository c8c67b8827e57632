package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pulse-chat/internal/domain/message"
	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/repository"
	pulse_errors "pulse-chat/pkg/errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	Password      string
	UserCount     int
	SeedMessages  bool
	WelcomeAuthor string
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Password:      "Test@123!",
		UserCount:     4,
		SeedMessages:  true,
		WelcomeAuthor: "alice",
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Users    []user.User
	Messages []message.Message
}

var testUserData = []struct {
	email    string
	username string
}{
	{"alice@test.com", "alice"},
	{"bob@test.com", "bob"},
	{"charlie@test.com", "charlie"},
	{"diana@test.com", "diana"},
	{"edward@test.com", "edward"},
	{"fiona@test.com", "fiona"},
}

// Seed creates development users and a short conversation. Users that
// already exist are reused, so running it twice is harmless.
func Seed(ctx context.Context, users repository.UserRepository, messages repository.MessageRepository, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	log.Println("Starting database seeding...")

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result := &SeedResult{}
	for i := 0; i < cfg.UserCount && i < len(testUserData); i++ {
		data := testUserData[i]

		existing, err := users.GetUserByEmail(ctx, data.email)
		if err == nil {
			log.Printf("Test user %s already exists, skipping", data.email)
			result.Users = append(result.Users, existing)
			continue
		}
		if !errors.Is(err, pulse_errors.ErrNotFound) {
			return nil, err
		}

		now := time.Now().UTC()
		newUser := user.User{
			ID:           uuid.New(),
			Username:     data.username,
			Email:        data.email,
			PasswordHash: string(hashedPassword),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := users.Create(ctx, &newUser); err != nil {
			return nil, fmt.Errorf("failed to create test user %s: %w", data.email, err)
		}
		result.Users = append(result.Users, newUser)
		log.Printf("Test user seeded: %s", data.email)
	}

	if cfg.SeedMessages {
		msgs, err := seedMessages(ctx, messages, result.Users, cfg.WelcomeAuthor)
		if err != nil {
			return nil, fmt.Errorf("failed to seed messages: %w", err)
		}
		result.Messages = msgs
	}

	log.Printf("Seeding complete: %d users, %d messages", len(result.Users), len(result.Messages))
	return result, nil
}

func seedMessages(ctx context.Context, messages repository.MessageRepository, users []user.User, welcomeAuthor string) ([]message.Message, error) {
	if len(users) == 0 {
		return nil, nil
	}

	author := users[0]
	for _, u := range users {
		if u.Username == welcomeAuthor {
			author = u
			break
		}
	}

	lines := []string{
		"Welcome to pulse-chat!",
		"Say hi to everyone here.",
	}

	seeded := make([]message.Message, 0, len(lines))
	base := time.Now().UTC()
	for i, content := range lines {
		m := message.Message{
			ID:        uuid.New(),
			Content:   content,
			UserID:    uuid.NullUUID{UUID: author.ID, Valid: true},
			Username:  author.Username,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := messages.Append(ctx, &m); err != nil {
			return nil, err
		}
		seeded = append(seeded, m)
	}
	return seeded, nil
}
