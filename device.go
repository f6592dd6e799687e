package lockr

import (
	"context"
	"errors"

	"github.com/MrEthical07/lockr/keystore"
)

// deviceIdentity is the durable user id binding this device to an
// MFA-enrolled account, plus the legacy token item it replaced.
type deviceIdentity struct {
	store     keystore.Store
	key       string
	legacyKey string
	opts      keystore.Options
}

func newDeviceIdentity(store keystore.Store, cfg StorageConfig) deviceIdentity {
	return deviceIdentity{
		store:     store,
		key:       cfg.DeviceKey,
		legacyKey: cfg.LegacyTokenKey,
		opts:      keystore.Options{Service: cfg.DeviceService},
	}
}

// load returns the stored user id, or "" when the device is unknown.
func (d deviceIdentity) load(ctx context.Context) (string, error) {
	v, err := d.store.Get(ctx, d.key, d.opts)
	if errors.Is(err, keystore.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (d deviceIdentity) save(ctx context.Context, userID string) error {
	return d.store.Set(ctx, d.key, userID, d.opts)
}

// forget deletes the identity and the legacy token. Both deletes are
// attempted.
func (d deviceIdentity) forget(ctx context.Context) error {
	errID := d.store.Delete(ctx, d.key, d.opts)
	var errLegacy error
	if d.legacyKey != "" {
		errLegacy = d.store.Delete(ctx, d.legacyKey, keystore.Options{})
	}
	return errors.Join(errID, errLegacy)
}

// legacyToken is the transport's bearer fallback. It is never written.
func (d deviceIdentity) legacyToken(ctx context.Context) string {
	if d.legacyKey == "" {
		return ""
	}
	v, err := d.store.Get(ctx, d.legacyKey, keystore.Options{})
	if err != nil {
		return ""
	}
	return v
}
