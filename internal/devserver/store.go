package devserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lockr:"

var (
	errEmailTaken     = errors.New("devserver: email already registered")
	errUserNotFound   = errors.New("devserver: user not found")
	errSessionUnknown = errors.New("devserver: refresh session unknown")
	errItemNotFound   = errors.New("devserver: vault item not found")
)

type userRecord struct {
	ID               string
	Email            string
	PasswordHash     string
	TOTPSecret       string
	Role             string
	CreatedAt        time.Time
	LastLoginAt      time.Time
	LastBackupRotate time.Time
	VaultSalt        string
	VaultCheck       string
}

type refreshSession struct {
	UserID string
	SID    string
}

// store is the Redis data layer.
type store struct {
	rdb redis.UniversalClient
}

func emailKey(email string) string   { return keyPrefix + "email:" + email }
func userKey(id string) string       { return keyPrefix + "user:" + id }
func backupKey(id string) string     { return keyPrefix + "backup:" + id }
func vaultKey(id string) string      { return keyPrefix + "vault:" + id }
func revokedKey(sid string) string   { return keyPrefix + "revoked:" + sid }
func refreshKey(token string) string { return keyPrefix + "refresh:" + tokenHash(token) }

func totpKey(id string, counter int64) string {
	return keyPrefix + "totp:" + id + ":" + strconv.FormatInt(counter, 10)
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *store) createUser(ctx context.Context, u *userRecord) error {
	u.ID = uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errEmailTaken
	}

	if err := s.rdb.HSet(ctx, userKey(u.ID), map[string]any{
		"email":      u.Email,
		"password":   u.PasswordHash,
		"totp":       u.TOTPSecret,
		"role":       u.Role,
		"created_at": u.CreatedAt.UTC().Format(time.RFC3339),
	}).Err(); err != nil {
		_ = s.rdb.Del(ctx, emailKey(u.Email)).Err()
		return err
	}
	return nil
}

func (s *store) userIDByEmail(ctx context.Context, email string) (string, error) {
	id, err := s.rdb.Get(ctx, emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", errUserNotFound
	}
	return id, err
}

func (s *store) user(ctx context.Context, id string) (*userRecord, error) {
	fields, err := s.rdb.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, errUserNotFound
	}
	return &userRecord{
		ID:               id,
		Email:            fields["email"],
		PasswordHash:     fields["password"],
		TOTPSecret:       fields["totp"],
		Role:             fields["role"],
		CreatedAt:        parseTime(fields["created_at"]),
		LastLoginAt:      parseTime(fields["last_login_at"]),
		LastBackupRotate: parseTime(fields["backup_rotated_at"]),
		VaultSalt:        fields["vault_salt"],
		VaultCheck:       fields["vault_check"],
	}, nil
}

func (s *store) touch(ctx context.Context, id, field string, at time.Time) error {
	return s.rdb.HSet(ctx, userKey(id), field, at.UTC().Format(time.RFC3339)).Err()
}

// initVault records the vault salt and verifier unless another request
// already did.
func (s *store) initVault(ctx context.Context, id, salt, check string) (bool, error) {
	ok, err := s.rdb.HSetNX(ctx, userKey(id), "vault_salt", salt).Result()
	if err != nil || !ok {
		return false, err
	}
	return true, s.rdb.HSet(ctx, userKey(id), "vault_check", check).Err()
}

// markTOTPUsed reports false when counter was already accepted for id.
func (s *store) markTOTPUsed(ctx context.Context, id string, counter int64, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, totpKey(id, counter), 1, ttl).Result()
}

func (s *store) replaceBackupCodes(ctx context.Context, id string, hashes []string) error {
	members := make([]any, len(hashes))
	for i, h := range hashes {
		members[i] = h
	}
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, backupKey(id))
		if len(members) > 0 {
			p.SAdd(ctx, backupKey(id), members...)
		}
		return nil
	})
	return err
}

// consumeBackupCode removes hash from the set; only one caller can win.
func (s *store) consumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	n, err := s.rdb.SRem(ctx, backupKey(id), hash).Result()
	return n == 1, err
}

func (s *store) backupCodesRemaining(ctx context.Context, id string) (int, error) {
	n, err := s.rdb.SCard(ctx, backupKey(id)).Result()
	return int(n), err
}

func (s *store) createRefresh(ctx context.Context, token string, sess refreshSession, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, refreshKey(token), "user", sess.UserID, "sid", sess.SID)
		p.Expire(ctx, refreshKey(token), ttl)
		return nil
	})
	return err
}

// takeRefresh deletes the session for token and returns it. A token can be
// taken once.
func (s *store) takeRefresh(ctx context.Context, token string) (refreshSession, error) {
	key := refreshKey(token)
	var get *redis.MapStringStringCmd
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		get = p.HGetAll(ctx, key)
		del = p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return refreshSession{}, err
	}
	fields := get.Val()
	if del.Val() != 1 || fields["user"] == "" {
		return refreshSession{}, errSessionUnknown
	}
	return refreshSession{UserID: fields["user"], SID: fields["sid"]}, nil
}

func (s *store) revoke(ctx context.Context, sid string, ttl time.Duration) error {
	return s.rdb.Set(ctx, revokedKey(sid), 1, ttl).Err()
}

func (s *store) revoked(ctx context.Context, sid string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(sid)).Result()
	return n == 1, err
}

func (s *store) putItem(ctx context.Context, userID, itemID string, sealed []byte) error {
	return s.rdb.HSet(ctx, vaultKey(userID), itemID, sealed).Err()
}

func (s *store) item(ctx context.Context, userID, itemID string) ([]byte, error) {
	b, err := s.rdb.HGet(ctx, vaultKey(userID), itemID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errItemNotFound
	}
	return b, err
}

func (s *store) items(ctx context.Context, userID string) (map[string]string, error) {
	return s.rdb.HGetAll(ctx, vaultKey(userID)).Result()
}

func (s *store) deleteItem(ctx context.Context, userID, itemID string) error {
	n, err := s.rdb.HDel(ctx, vaultKey(userID), itemID).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return errItemNotFound
	}
	return nil
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
