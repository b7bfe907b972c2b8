package grid

import (
	"crypto/sha256"
	"encoding/hex"
)

// Handle is the stable identifier of a registered entity. It is derived
// purely from (namespace, itemKey): identical inputs always yield the
// identical handle, so callers may precompute handles offline. Collisions
// at the registry are an existence check, not a property of the hash.
type Handle string

// DeriveHandle computes the handle for (namespace, itemKey) without
// touching the registry. The 0x1f separator keeps ("ab","c") and
// ("a","bc") distinct.
func DeriveHandle(namespace, itemKey string) Handle {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0x1f})
	h.Write([]byte(itemKey))
	sum := h.Sum(nil)
	return Handle("h_" + hex.EncodeToString(sum[:12]))
}

// Registry maps (namespace, itemKey) claims to handles. It is a plain
// existence ledger; authorization lives in the Authority.
type Registry struct {
	claims map[Handle]claim
}

type claim struct {
	Namespace string
	ItemKey   string
}

func NewRegistry() *Registry {
	return &Registry{claims: map[Handle]claim{}}
}

// Claim registers (namespace, itemKey) and returns its handle. A second
// claim with identical inputs fails E_ALREADY_EXISTS.
func (r *Registry) Claim(namespace, itemKey string) (Handle, error) {
	const op = "registry.claim"
	if namespace == "" || itemKey == "" {
		return "", errInvalidState(op, "empty namespace or item key")
	}
	h := DeriveHandle(namespace, itemKey)
	if _, ok := r.claims[h]; ok {
		return "", errAlreadyExists(op, "handle %s already claimed", h)
	}
	r.claims[h] = claim{Namespace: namespace, ItemKey: itemKey}
	return h, nil
}

// Exists is pure and publicly callable; no authorization required.
func (r *Registry) Exists(namespace, itemKey string) bool {
	_, ok := r.claims[DeriveHandle(namespace, itemKey)]
	return ok
}

// release frees a handle when its owning entity is destroyed. Handles are
// never mutated in place; unanchor is the only path here.
func (r *Registry) release(h Handle) {
	delete(r.claims, h)
}
