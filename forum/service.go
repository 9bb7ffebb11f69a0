// Package forum is the domain layer on top of the persistence core: users,
// sections and settings, read through the cache and written through the
// document store with synchronous cache invalidation.
package forum

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmcleod/opweb/auth"
	"github.com/jmcleod/opweb/cache"
	"github.com/jmcleod/opweb/document"
	"github.com/jmcleod/opweb/internal/util"
)

var (
	ErrNicknameRequired   = errors.New("nickname required")
	ErrPasswordRequired   = errors.New("password required")
	ErrNicknameTaken      = errors.New("nickname already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTitleRequired      = errors.New("title required")
	ErrNotFound           = errors.New("not found")
)

// Cache keys and the prefixes that invalidate them.
const (
	prefixUsers    = "users"
	prefixSections = "sections"
	prefixSettings = "settings"

	keyUsers          = prefixUsers + ":list"
	keySections       = prefixSections + ":list"
	keySettingsPublic = prefixSettings + ":public"
)

// Token claim names.
const (
	ClaimUserID = "userId"
	ClaimRole   = "role"
)

const maxTitleLen = 80

// Service implements the forum operations.
type Service struct {
	store  *document.Store
	cache  *cache.Cache
	tokens *auth.TokenCodec
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService returns a Service over the given core components.
func NewService(store *document.Store, c *cache.Cache, tokens *auth.TokenCodec, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cache:  c,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

var errAdminExists = errors.New("admin exists")

// EnsureAdmin creates the admin account named login unless a user with
// exactly that nickname exists. It reports whether an account was created.
// A nickname differing from login only in case is an ErrNicknameTaken
// error, since logins match nicknames ignoring case.
func (s *Service) EnsureAdmin(login, password string) (bool, error) {
	if strings.TrimSpace(login) == "" {
		return false, ErrNicknameRequired
	}
	if password == "" {
		return false, ErrPasswordRequired
	}
	err := s.store.Update(func(tree *document.Tree) error {
		users, err := fromRecords[User](tree.Users)
		if err != nil {
			return err
		}
		if existing, ok := findByNickname(users, login); ok {
			if existing.Nickname == login {
				return errAdminExists
			}
			return fmt.Errorf("%w: %q collides with existing user %q", ErrNicknameTaken, login, existing.Nickname)
		}
		u, err := s.newUser(login, password, "", "system", RoleAdmin)
		if err != nil {
			return err
		}
		return appendRecord(&tree.Users, u)
	})
	if errors.Is(err, errAdminExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seeding admin: %w", err)
	}
	s.cache.Invalidate(prefixUsers)
	s.logger.Info("seeded admin account", "nickname", login)
	return true, nil
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Nickname string
	Password string
	Email    string
	IP       string
}

// Register creates a user account. Nicknames are trimmed and must be
// unique ignoring case.
func (s *Service) Register(in RegisterInput) (User, error) {
	nickname := strings.TrimSpace(in.Nickname)
	if nickname == "" {
		return User{}, ErrNicknameRequired
	}
	if in.Password == "" {
		return User{}, ErrPasswordRequired
	}

	var created User
	err := s.store.Update(func(tree *document.Tree) error {
		users, err := fromRecords[User](tree.Users)
		if err != nil {
			return err
		}
		if _, ok := findByNickname(users, nickname); ok {
			return ErrNicknameTaken
		}
		u, err := s.newUser(nickname, in.Password, in.Email, in.IP, RoleUser)
		if err != nil {
			return err
		}
		created = u
		return appendRecord(&tree.Users, u)
	})
	if err != nil {
		return User{}, err
	}
	s.cache.Invalidate(prefixUsers)
	s.logger.Info("user registered", "user_id", created.ID, "nickname", created.Nickname)
	return created, nil
}

func (s *Service) newUser(nickname, password, email, ip, role string) (User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hashing password: %w", err)
	}
	id, err := newID("user-")
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:           id,
		Nickname:     nickname,
		PasswordHash: hash,
		Email:        email,
		IP:           ip,
		Role:         role,
		CreatedAt:    s.now().UTC().Format(time.RFC3339Nano),
		Favorites:    []string{},
		Theme:        "dark",
	}
	u.Badges = computeBadges(u)
	return u, nil
}

// Authenticate checks a nickname and password and returns the user with a
// freshly signed session token.
func (s *Service) Authenticate(nickname, password string) (User, string, error) {
	users, err := s.Users()
	if err != nil {
		return User{}, "", err
	}
	u, ok := findByNickname(users, strings.TrimSpace(nickname))
	if !ok || !auth.VerifyPassword(password, u.PasswordHash) {
		return User{}, "", ErrInvalidCredentials
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return User{}, "", err
	}
	return u, token, nil
}

// IssueToken signs a session token for u.
func (s *Service) IssueToken(u User) (string, error) {
	token, err := s.tokens.Sign(auth.Claims{ClaimUserID: u.ID, ClaimRole: u.Role})
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// TokenTTL returns the lifetime of issued tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// UserFromToken resolves a session token to its user. Invalid tokens and
// tokens of deleted users yield false.
func (s *Service) UserFromToken(token string) (User, bool) {
	claims, ok := s.tokens.Verify(token)
	if !ok {
		return User{}, false
	}
	u, err := s.UserByID(claims.String(ClaimUserID))
	if err != nil {
		return User{}, false
	}
	return u, true
}

// UserByID returns the user with the given id or ErrNotFound.
func (s *Service) UserByID(id string) (User, error) {
	users, err := s.Users()
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// Users lists every account. The returned slice is shared with the cache
// and must not be modified.
func (s *Service) Users() ([]User, error) {
	return cache.Load(s.cache, keyUsers, func() ([]User, error) {
		tree, err := s.store.Read()
		if err != nil {
			return nil, err
		}
		return fromRecords[User](tree.Users)
	})
}

// Sections lists every section. The returned slice is shared with the
// cache and must not be modified.
func (s *Service) Sections() ([]Section, error) {
	return cache.Load(s.cache, keySections, func() ([]Section, error) {
		tree, err := s.store.Read()
		if err != nil {
			return nil, err
		}
		return fromRecords[Section](tree.Sections)
	})
}

// AddSection appends a new section.
func (s *Service) AddSection(title, description string) (Section, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Section{}, ErrTitleRequired
	}
	id, err := newID("sec-")
	if err != nil {
		return Section{}, err
	}
	sec := Section{
		ID:          id,
		Title:       title,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC().Format(time.RFC3339Nano),
	}
	err = s.store.Update(func(tree *document.Tree) error {
		return appendRecord(&tree.Sections, sec)
	})
	if err != nil {
		return Section{}, err
	}
	s.cache.Invalidate(prefixSections)
	return sec, nil
}

// SectionUpdate holds the fields to change; nil fields are left as is.
type SectionUpdate struct {
	Title       *string
	Description *string
}

// UpdateSection changes an existing section. Fields of the stored record
// that Section does not model are preserved.
func (s *Service) UpdateSection(id string, upd SectionUpdate) (Section, error) {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return Section{}, ErrTitleRequired
	}
	var updated Section
	err := s.store.Update(func(tree *document.Tree) error {
		for _, rec := range tree.Sections {
			if rec["id"] != id {
				continue
			}
			if upd.Title != nil {
				rec["title"] = strings.TrimSpace(*upd.Title)
			}
			if upd.Description != nil {
				rec["description"] = strings.TrimSpace(*upd.Description)
			}
			sec, err := fromRecord[Section](rec)
			if err != nil {
				return err
			}
			updated = sec
			return nil
		}
		return ErrNotFound
	})
	if err != nil {
		return Section{}, err
	}
	s.cache.Invalidate(prefixSections)
	return updated, nil
}

// PublicSettings returns the forum title and logo.
func (s *Service) PublicSettings() (document.Settings, error) {
	return cache.Load(s.cache, keySettingsPublic, func() (document.Settings, error) {
		tree, err := s.store.Read()
		if err != nil {
			return document.Settings{}, err
		}
		return *tree.Settings, nil
	})
}

// UpdateSettings sets the title and logo. The title is trimmed and capped
// at 80 characters; a blank title keeps the current one.
func (s *Service) UpdateSettings(title, logo string) (document.Settings, error) {
	var updated document.Settings
	err := s.store.Update(func(tree *document.Tree) error {
		next := *tree.Settings
		if t := truncateRunes(strings.TrimSpace(title), maxTitleLen); t != "" {
			next.Title = t
		}
		next.Logo = strings.TrimSpace(logo)
		tree.Settings = &next
		updated = next
		return nil
	})
	if err != nil {
		return document.Settings{}, err
	}
	s.cache.Invalidate(prefixSettings)
	s.logger.Info("settings updated", "title", updated.Title, "has_logo", updated.Logo != "")
	return updated, nil
}

func findByNickname(users []User, nickname string) (User, bool) {
	for _, u := range users {
		if strings.EqualFold(u.Nickname, nickname) {
			return u, true
		}
	}
	return User{}, false
}

func appendRecord(dst *[]document.Record, v any) error {
	rec, err := toRecord(v)
	if err != nil {
		return err
	}
	*dst = append(*dst, rec)
	return nil
}

func newID(prefix string) (string, error) {
	suffix, err := util.RandomHex(8)
	if err != nil {
		return "", err
	}
	return prefix + suffix, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
