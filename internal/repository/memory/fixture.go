package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pwd-registry/support-desk/internal/domain"
)

// Fixture is the seed document for development runs without Postgres.
type Fixture struct {
	Accounts []FixtureAccount `json:"accounts"`
}

// FixtureAccount is a login account. Accounts with the pwd_member role also get a PWD member
// record; PWDNumber is required for them.
type FixtureAccount struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	MemberID  string `json:"member_id"`
	PWDNumber string `json:"pwd_number"`
	FullName  string `json:"full_name"`
}

// LoadFixture decodes a fixture from r and seeds it, hashing plaintext passwords with hash.
// Nothing is seeded when any entry is invalid. It returns the number of accounts seeded.
func (s *Store) LoadFixture(r io.Reader, hash func(string) (string, error)) (int, error) {
	var fixture Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fixture); err != nil {
		return 0, fmt.Errorf("decode fixture: %w", err)
	}

	now := time.Now().UTC()
	accounts := make([]domain.Account, 0, len(fixture.Accounts))
	var members []domain.PWDMember
	for i, entry := range fixture.Accounts {
		email := strings.ToLower(strings.TrimSpace(entry.Email))
		if email == "" || entry.Password == "" {
			return 0, fmt.Errorf("fixture account %d: email and password are required", i)
		}
		passwordHash, err := hash(entry.Password)
		if err != nil {
			return 0, fmt.Errorf("fixture account %s: %w", email, err)
		}
		account := domain.Account{
			ID:           orNewID(entry.ID),
			Email:        email,
			PasswordHash: passwordHash,
			Role:         domain.ParseRole(entry.Role),
			Active:       true,
			CreatedAt:    now,
		}
		accounts = append(accounts, account)

		if account.Role != domain.RolePWDMember {
			continue
		}
		if strings.TrimSpace(entry.PWDNumber) == "" {
			return 0, fmt.Errorf("fixture account %s: pwd_number is required for PWD members", email)
		}
		members = append(members, domain.PWDMember{
			ID:        orNewID(entry.MemberID),
			AccountID: account.ID,
			PWDNumber: strings.TrimSpace(entry.PWDNumber),
			FullName:  strings.TrimSpace(entry.FullName),
			CreatedAt: now,
		})
	}

	for _, account := range accounts {
		s.SeedAccount(account)
	}
	for _, member := range members {
		s.SeedPWDMember(member)
	}
	return len(accounts), nil
}

func orNewID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
