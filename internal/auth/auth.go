package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/AbduElrahman2001/BALHA/internal/models"
	"github.com/AbduElrahman2001/BALHA/internal/store"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)

const (
	DefaultUsername   = "admin"
	DefaultPassword   = "admin123"
	DefaultSessionTTL = 8 * time.Hour
)

type Options struct {
	SeedUsername string
	SeedPassword string
	SessionTTL   time.Duration
	BcryptCost   int
	Clock        func() time.Time
	Logger       *logrus.Logger
}

// Gate validates the administrator credential and holds the single admin
// session of the device.
type Gate struct {
	mu     sync.Mutex
	store  store.UserStore
	ttl    time.Duration
	clock  func() time.Time
	logger *logrus.Logger
	// dummyHash is compared against when the username is unknown so both
	// failures cost one bcrypt comparison.
	dummyHash []byte
}

var compareHash = bcrypt.CompareHashAndPassword

// Open seeds the default administrator when the users map is empty.
func Open(ctx context.Context, st store.UserStore, options Options) (*Gate, error) {
	g := &Gate{
		store:  st,
		ttl:    options.SessionTTL,
		clock:  options.Clock,
		logger: options.Logger,
	}
	if g.ttl <= 0 {
		g.ttl = DefaultSessionTTL
	}
	if g.clock == nil {
		g.clock = func() time.Time { return time.Now().UTC() }
	}
	if g.logger == nil {
		g.logger = logrus.StandardLogger()
	}
	cost := options.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash placeholder password")
	}
	g.dummyHash = dummy

	users, err := st.LoadUsers(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load users")
	}
	if len(users) > 0 {
		return g, nil
	}

	username := strings.TrimSpace(options.SeedUsername)
	if username == "" {
		username = DefaultUsername
	}
	password := options.SeedPassword
	if password == "" {
		password = DefaultPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, errors.Wrap(err, "hash seed password")
	}
	users[username] = models.User{Username: username, PasswordHash: string(hash), Role: models.RoleAdmin}
	if err := st.SaveUsers(ctx, users); err != nil {
		return nil, errors.Wrap(err, "seed admin user")
	}
	g.logger.WithField("username", username).Info("seeded default administrator")
	return g, nil
}

// Login replaces any existing session on success.
func (g *Gate) Login(ctx context.Context, username, password string) (models.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	users, err := g.store.LoadUsers(ctx)
	if err != nil {
		return models.Session{}, errors.Wrap(err, "load users")
	}
	user, ok := users[strings.TrimSpace(username)]
	if !ok || user.Role != models.RoleAdmin {
		_ = compareHash(g.dummyHash, []byte(password))
		return models.Session{}, ErrInvalidCredentials
	}
	if err := compareHash([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.Session{}, ErrInvalidCredentials
	}

	now := g.clock()
	session := models.Session{
		SessionID: uuid.NewString(),
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(g.ttl),
	}
	if err := g.store.SaveCurrentUser(ctx, session); err != nil {
		return models.Session{}, errors.Wrap(err, "save session")
	}
	g.logger.WithField("username", user.Username).Info("administrator logged in")
	return session, nil
}

func (g *Gate) Logout(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.store.ClearCurrentUser(ctx)
}

// Current returns the live session, if any. Expired sessions are dropped.
func (g *Gate) Current(ctx context.Context) (models.Session, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current(ctx)
}

func (g *Gate) Authenticate(ctx context.Context, sessionID string) (models.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	session, ok, err := g.current(ctx)
	if err != nil {
		return models.Session{}, err
	}
	if !ok || sessionID == "" || session.SessionID != sessionID {
		return models.Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (g *Gate) current(ctx context.Context) (models.Session, bool, error) {
	session, found, err := g.store.LoadCurrentUser(ctx)
	if err != nil {
		return models.Session{}, false, errors.Wrap(err, "load session")
	}
	if !found {
		return models.Session{}, false, nil
	}
	if !g.clock().Before(session.ExpiresAt) {
		if err := g.store.ClearCurrentUser(ctx); err != nil {
			return models.Session{}, false, errors.Wrap(err, "clear expired session")
		}
		return models.Session{}, false, nil
	}
	return session, true, nil
}
