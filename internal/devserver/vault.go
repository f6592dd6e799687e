package devserver

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/MrEthical07/lockr/internal/seal"
)

var vaultCheckPlaintext = []byte("lockr-vault-check")

type vaultItem struct {
	SiteName string `json:"siteName"`
	Username string `json:"username"`
	Password string `json:"password"`
	Notes    string `json:"notes,omitempty"`
}

func (v vaultItem) Validate() error {
	return validation.ValidateStruct(&v,
		validation.Field(&v.SiteName, validation.Required, validation.Length(1, 256)),
		validation.Field(&v.Username, validation.Length(0, 256)),
		validation.Field(&v.Password, validation.Required, validation.Length(1, 1024)),
		validation.Field(&v.Notes, validation.Length(0, 4096)),
	)
}

type vaultItemUpdate struct {
	SiteName *string `json:"siteName"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	Notes    *string `json:"notes"`
}

type listedItem struct {
	ID string `json:"_id"`
	vaultItem
}

// withVaultKey derives the caller's vault key from the master password
// header. The first vault request for a user fixes the master password.
func (s *Server) withVaultKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		master := r.Header.Get(s.cfg.MasterPasswordHeader)
		if master == "" {
			writeError(w, http.StatusBadRequest, "Master password required")
			return
		}
		ctx := r.Context()
		key, err := s.vaultKey(ctx, userIDFrom(ctx), master)
		if err != nil {
			if errors.Is(err, seal.ErrCiphertext) {
				writeError(w, http.StatusForbidden, "Invalid master password")
				return
			}
			s.internalError(w, r, "vault key derivation failed", err)
			return
		}
		next(w, r.WithContext(context.WithValue(ctx, ctxVaultKey, key)))
	}
}

func (s *Server) vaultKey(ctx context.Context, userID, master string) ([]byte, error) {
	u, err := s.store.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	aad := []byte(userID)

	if u.VaultSalt == "" {
		salt, err := seal.NewSalt()
		if err != nil {
			return nil, err
		}
		key := seal.DeriveKey([]byte(master), salt, s.cfg.VaultKDF)
		check, err := seal.Seal(key, vaultCheckPlaintext, aad)
		if err != nil {
			return nil, err
		}
		created, err := s.store.initVault(ctx, userID,
			base64.StdEncoding.EncodeToString(salt),
			base64.StdEncoding.EncodeToString(check))
		if err != nil {
			return nil, err
		}
		if created {
			return key, nil
		}
		if u, err = s.store.user(ctx, userID); err != nil {
			return nil, err
		}
	}

	salt, err := base64.StdEncoding.DecodeString(u.VaultSalt)
	if err != nil {
		return nil, err
	}
	check, err := base64.StdEncoding.DecodeString(u.VaultCheck)
	if err != nil {
		return nil, err
	}
	key := seal.DeriveKey([]byte(master), salt, s.cfg.VaultKDF)
	if _, err := seal.Open(key, check, aad); err != nil {
		return nil, err
	}
	return key, nil
}

func vaultKeyFrom(ctx context.Context) []byte {
	k, _ := ctx.Value(ctxVaultKey).([]byte)
	return k
}

func itemAAD(userID, itemID string) []byte {
	return []byte(userID + ":" + itemID)
}

func (s *Server) sealItem(ctx context.Context, userID, itemID string, item vaultItem) ([]byte, error) {
	plain, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	return seal.Seal(vaultKeyFrom(ctx), plain, itemAAD(userID, itemID))
}

func (s *Server) openItem(ctx context.Context, userID, itemID string, box []byte) (vaultItem, error) {
	var item vaultItem
	plain, err := seal.Open(vaultKeyFrom(ctx), box, itemAAD(userID, itemID))
	if err != nil {
		return item, err
	}
	err = json.Unmarshal(plain, &item)
	return item, err
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	boxes, err := s.store.items(ctx, userID)
	if err != nil {
		s.internalError(w, r, "vault list failed", err)
		return
	}
	out := make([]listedItem, 0, len(boxes))
	for id, box := range boxes {
		item, err := s.openItem(ctx, userID, id, []byte(box))
		if err != nil {
			s.log.WarnContext(ctx, "vault item unreadable", "item_id", id, "error", err)
			continue
		}
		out = append(out, listedItem{ID: id, vaultItem: item})
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var item vaultItem
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := item.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	userID := userIDFrom(ctx)

	id, err := ulid.New(ulid.Timestamp(s.now()), rand.Reader)
	if err != nil {
		s.internalError(w, r, "item id generation failed", err)
		return
	}
	box, err := s.sealItem(ctx, userID, id.String(), item)
	if err != nil {
		s.internalError(w, r, "item sealing failed", err)
		return
	}
	if err := s.store.putItem(ctx, userID, id.String(), box); err != nil {
		s.internalError(w, r, "item storage failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"itemId": id.String(), "message": "Item added"})
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var upd vaultItemUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ctx := r.Context()
	userID := userIDFrom(ctx)
	itemID := mux.Vars(r)["id"]

	box, err := s.store.item(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, errItemNotFound) {
			writeError(w, http.StatusNotFound, "Item not found")
			return
		}
		s.internalError(w, r, "item lookup failed", err)
		return
	}
	item, err := s.openItem(ctx, userID, itemID, box)
	if err != nil {
		s.internalError(w, r, "item unsealing failed", err)
		return
	}

	if upd.SiteName != nil {
		item.SiteName = *upd.SiteName
	}
	if upd.Username != nil {
		item.Username = *upd.Username
	}
	if upd.Password != nil {
		item.Password = *upd.Password
	}
	if upd.Notes != nil {
		item.Notes = *upd.Notes
	}
	if err := item.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if box, err = s.sealItem(ctx, userID, itemID, item); err != nil {
		s.internalError(w, r, "item sealing failed", err)
		return
	}
	if err := s.store.putItem(ctx, userID, itemID, box); err != nil {
		s.internalError(w, r, "item storage failed", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Item updated"})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	err := s.store.deleteItem(ctx, userIDFrom(ctx), mux.Vars(r)["id"])
	if errors.Is(err, errItemNotFound) {
		writeError(w, http.StatusNotFound, "Item not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "item deletion failed", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Item deleted"})
}
