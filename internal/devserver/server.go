package devserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/lockr/internal/rate"
	"github.com/MrEthical07/lockr/jwt"
)

// Server serves the auth and vault API.
type Server struct {
	cfg     Config
	store   *store
	tokens  *jwt.Manager
	limiter *rate.Limiter
	log     *slog.Logger
}

// New validates cfg and returns a Server over rdb.
func New(rdb redis.UniversalClient, cfg Config) (*Server, error) {
	if rdb == nil {
		return nil, errors.New("devserver: redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.AccessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    cfg.SigningKey,
		Issuer:        cfg.Issuer,
		Now:           cfg.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	}

	return &Server{
		cfg:    cfg,
		store:  &store{rdb: rdb},
		tokens: tokens,
		limiter: rate.New(rdb, rate.Config{
			Prefix:      keyPrefix + "rl",
			MaxAttempts: cfg.MaxAttempts,
			Window:      cfg.AttemptWindow,
		}),
		log: cfg.Logger,
	}, nil
}

// Handler returns the routed API wrapped in request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix(s.cfg.Prefix).Subrouter()

	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/mfa/verify", s.handleVerifyMFA).Methods(http.MethodPost)
	api.HandleFunc("/auth/token/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.Handle("/auth/me", s.requireAuth(s.handleMe)).Methods(http.MethodGet)
	api.Handle("/auth/mfa/backup/rotate", s.requireAuth(s.handleRotateBackupCodes)).Methods(http.MethodPost)

	api.Handle("/vault", s.requireAuth(s.withVaultKey(s.handleListItems))).Methods(http.MethodGet)
	api.Handle("/vault", s.requireAuth(s.withVaultKey(s.handleAddItem))).Methods(http.MethodPost)
	api.Handle("/vault/{id}", s.requireAuth(s.withVaultKey(s.handleUpdateItem))).Methods(http.MethodPut)
	api.Handle("/vault/{id}", s.requireAuth(s.withVaultKey(s.handleDeleteItem))).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return withRequestLogging(r, s.log)
}

func (s *Server) now() time.Time {
	return s.cfg.Now()
}
