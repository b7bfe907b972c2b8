package grid

import (
	"testing"

	"fluxgrid.ai/internal/protocol"
)

func TestSponsorAllowlist(t *testing.T) {
	a := NewAuthority("root")

	if err := a.VerifySponsor("alice"); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("unlisted principal: got %v, want %s", err, protocol.ErrUnauthorized)
	}
	if err := a.AddSponsor("alice", "alice"); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("non-root add: got %v, want %s", err, protocol.ErrUnauthorized)
	}
	if err := a.AddSponsor("root", "alice"); err != nil {
		t.Fatalf("root add: %v", err)
	}
	if err := a.VerifySponsor("alice"); err != nil {
		t.Fatalf("listed principal rejected: %v", err)
	}
	if err := a.RemoveSponsor("root", "alice"); err != nil {
		t.Fatalf("root remove: %v", err)
	}
	if err := a.VerifySponsor("alice"); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("removed principal still accepted")
	}
	// Root is always a sponsor.
	if err := a.VerifySponsor("root"); err != nil {
		t.Fatalf("root rejected: %v", err)
	}
}

func TestTrustedSigners(t *testing.T) {
	a := NewAuthority("root")
	if err := a.AddTrustedSigner("alice", "sig1"); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("non-root signer add: got %v", err)
	}
	if err := a.AddTrustedSigner("root", "sig1"); err != nil {
		t.Fatalf("add signer: %v", err)
	}
	if !a.TrustedSigner("sig1") {
		t.Fatalf("signer not trusted after add")
	}
	if err := a.RemoveTrustedSigner("root", "sig1"); err != nil {
		t.Fatalf("remove signer: %v", err)
	}
	if a.TrustedSigner("sig1") {
		t.Fatalf("signer trusted after remove")
	}
}

func TestMintOwnershipOncePerTarget(t *testing.T) {
	a := NewAuthority("root")
	h := DeriveHandle("ns", "vault1")

	if _, err := a.MintOwnership("alice", KindStorage, h); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("non-sponsor mint: got %v", err)
	}
	tok, err := a.MintOwnership("root", KindStorage, h)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if tok.Target() != h || tok.Kind() != KindStorage || tok.Holder() != "root" {
		t.Fatalf("token fields: %s %s %s", tok.Target(), tok.Kind(), tok.Holder())
	}
	if _, err := a.MintOwnership("root", KindStorage, h); !IsCode(err, protocol.ErrAlreadyExists) {
		t.Fatalf("second mint: got %v, want %s", err, protocol.ErrAlreadyExists)
	}
}

func TestAuthorizeChecksTargetAndKind(t *testing.T) {
	a := NewAuthority("root")
	vault := DeriveHandle("ns", "vault1")
	tram := DeriveHandle("ns", "tram1")
	vaultTok, _ := a.MintOwnership("root", KindStorage, vault)
	tramTok, _ := a.MintOwnership("root", KindTransit, tram)

	if err := a.Authorize(vaultTok, vault, KindStorage); err != nil {
		t.Fatalf("authorize own target: %v", err)
	}
	if err := a.Authorize(vaultTok, tram, KindTransit); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("wrong target: got %v, want %s", err, protocol.ErrUnauthorized)
	}
	// A token of one kind never authorizes an entity of another kind,
	// whatever handle it names.
	if err := a.Authorize(tramTok, tram, KindStorage); !IsCode(err, protocol.ErrTypeMismatch) {
		t.Fatalf("wrong kind: got %v, want %s", err, protocol.ErrTypeMismatch)
	}
	if err := a.Authorize(nil, vault, KindStorage); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("nil token: got %v", err)
	}
}

func TestTransferRequiresCurrentHolder(t *testing.T) {
	a := NewAuthority("root")
	h := DeriveHandle("ns", "vault1")
	tok, _ := a.MintOwnership("root", KindStorage, h)

	if err := a.Transfer(tok, "mallory", "mallory"); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("non-holder transfer: got %v", err)
	}
	if err := a.Transfer(tok, "root", "alice"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tok.Holder() != "alice" {
		t.Fatalf("holder = %s, want alice", tok.Holder())
	}
	// Binding and identity survive the transfer.
	if err := a.Authorize(tok, h, KindStorage); err != nil {
		t.Fatalf("authorize after transfer: %v", err)
	}
	if err := a.Transfer(tok, "alice", "bob"); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
}

func TestRevokedTokenNoLongerAuthorizes(t *testing.T) {
	a := NewAuthority("root")
	h := DeriveHandle("ns", "vault1")
	tok, _ := a.MintOwnership("root", KindStorage, h)
	a.revoke(h)
	if err := a.Authorize(tok, h, KindStorage); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("revoked token authorized: %v", err)
	}
	if err := a.Transfer(tok, "root", "alice"); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("revoked token transferred: %v", err)
	}
}
