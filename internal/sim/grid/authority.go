package grid

import "github.com/google/uuid"

// Principal identifies a caller (operator, sponsor, or token holder).
type Principal string

// Kind tags what sort of entity a handle points at. An ownership token
// minted for one kind never authorizes mutation of another, even if the
// target handles were to collide.
type Kind string

const (
	KindSource  Kind = "SOURCE"
	KindStorage Kind = "STORAGE"
	KindTransit Kind = "TRANSIT"
	KindDefense Kind = "DEFENSE"
)

func validKind(k Kind) bool {
	switch k {
	case KindSource, KindStorage, KindTransit, KindDefense:
		return true
	}
	return false
}

// OwnershipToken is a capability bound to exactly one handle. Fields are
// unexported: tokens can only be minted by an Authority, never assembled
// by callers. The holder is data; transferring a token changes who may
// present it, not what it is bound to.
type OwnershipToken struct {
	id     string
	kind   Kind
	target Handle
	holder Principal
}

func (t *OwnershipToken) ID() string        { return t.id }
func (t *OwnershipToken) Kind() Kind        { return t.kind }
func (t *OwnershipToken) Target() Handle    { return t.target }
func (t *OwnershipToken) Holder() Principal { return t.holder }

// Authority is the capability root: it owns the sponsor allowlist, the
// trusted-signer allowlist consumed by the external proof subsystem, and
// every live ownership token. It is passed explicitly (never ambient)
// so the core stays testable in isolation.
type Authority struct {
	root     Principal
	sponsors map[Principal]bool
	signers  map[string]bool
	tokens   map[Handle]*OwnershipToken
}

// NewAuthority bootstraps the root authority. Called once at deploy time
// by the operator; root itself is implicitly a sponsor.
func NewAuthority(root Principal) *Authority {
	return &Authority{
		root:     root,
		sponsors: map[Principal]bool{},
		signers:  map[string]bool{},
		tokens:   map[Handle]*OwnershipToken{},
	}
}

func (a *Authority) Root() Principal { return a.root }

func (a *Authority) verifyRoot(op string, caller Principal) error {
	if caller != a.root {
		return errUnauthorized(op, "caller %s is not the root authority", caller)
	}
	return nil
}

// AddSponsor admits a principal to the allowlist. Root-gated.
func (a *Authority) AddSponsor(caller, p Principal) error {
	const op = "authority.add_sponsor"
	if err := a.verifyRoot(op, caller); err != nil {
		return err
	}
	if p == "" {
		return errInvalidState(op, "empty principal")
	}
	a.sponsors[p] = true
	return nil
}

// RemoveSponsor drops a principal from the allowlist. Root-gated.
func (a *Authority) RemoveSponsor(caller, p Principal) error {
	const op = "authority.remove_sponsor"
	if err := a.verifyRoot(op, caller); err != nil {
		return err
	}
	delete(a.sponsors, p)
	return nil
}

// VerifySponsor is the precondition for every administrative entry point.
func (a *Authority) VerifySponsor(caller Principal) error {
	if caller == a.root || a.sponsors[caller] {
		return nil
	}
	return errUnauthorized("authority.verify_sponsor", "caller %s is not a sponsor", caller)
}

// AddTrustedSigner / RemoveTrustedSigner manage the signer allowlist the
// external proof subsystem reads. Root-gated; the core never verifies
// signatures itself.
func (a *Authority) AddTrustedSigner(caller Principal, signer string) error {
	const op = "authority.add_trusted_signer"
	if err := a.verifyRoot(op, caller); err != nil {
		return err
	}
	if signer == "" {
		return errInvalidState(op, "empty signer")
	}
	a.signers[signer] = true
	return nil
}

func (a *Authority) RemoveTrustedSigner(caller Principal, signer string) error {
	const op = "authority.remove_trusted_signer"
	if err := a.verifyRoot(op, caller); err != nil {
		return err
	}
	delete(a.signers, signer)
	return nil
}

func (a *Authority) TrustedSigner(signer string) bool {
	return a.signers[signer]
}

// MintOwnership creates the token for a freshly anchored entity.
// Sponsor-gated; at most one token per target ever exists.
func (a *Authority) MintOwnership(caller Principal, kind Kind, target Handle) (*OwnershipToken, error) {
	const op = "authority.mint_ownership"
	if err := a.VerifySponsor(caller); err != nil {
		return nil, err
	}
	if !validKind(kind) {
		return nil, errTypeMismatch(op, "unknown kind %q", kind)
	}
	if _, ok := a.tokens[target]; ok {
		return nil, errAlreadyExists(op, "token for %s already exists", target)
	}
	tok := &OwnershipToken{
		id:     uuid.NewString(),
		kind:   kind,
		target: target,
		holder: caller,
	}
	a.tokens[target] = tok
	return tok, nil
}

// Authorize is mandatory at the start of every owner-gated mutation.
// The token must be live, bound to exactly the given target, and tagged
// with the entity's declared kind.
func (a *Authority) Authorize(tok *OwnershipToken, target Handle, kind Kind) error {
	const op = "authority.authorize"
	if tok == nil {
		return errUnauthorized(op, "nil token")
	}
	live, ok := a.tokens[tok.target]
	if !ok || live.id != tok.id {
		return errUnauthorized(op, "token %s is not live", tok.id)
	}
	if tok.target != target {
		return errUnauthorized(op, "token bound to %s, not %s", tok.target, target)
	}
	if tok.kind != kind {
		return errTypeMismatch(op, "token kind %s does not authorize %s entities", tok.kind, kind)
	}
	return nil
}

// Transfer reassigns the holder. Current-holder proof is the only gate;
// identity and binding never change.
func (a *Authority) Transfer(tok *OwnershipToken, caller, newHolder Principal) error {
	const op = "authority.transfer"
	if tok == nil {
		return errUnauthorized(op, "nil token")
	}
	live, ok := a.tokens[tok.target]
	if !ok || live.id != tok.id {
		return errUnauthorized(op, "token %s is not live", tok.id)
	}
	if tok.holder != caller {
		return errUnauthorized(op, "caller %s does not hold token %s", caller, tok.id)
	}
	if newHolder == "" {
		return errInvalidState(op, "empty new holder")
	}
	live.holder = newHolder
	return nil
}

// revoke destroys the token bound to target. Runs only when the bound
// entity is destroyed.
func (a *Authority) revoke(target Handle) {
	delete(a.tokens, target)
}
