package grid

import (
	"testing"

	"fluxgrid.ai/internal/protocol"
)

func TestAnchorAssemblyValidatesKind(t *testing.T) {
	g := newTestGrid(t)

	if _, _, err := g.AnchorAssembly(opSponsor, "world1", "t1", KindSource, "TURRET"); !IsCode(err, protocol.ErrTypeMismatch) {
		t.Fatalf("source kind for consumer: got %v", err)
	}
	if _, _, err := g.AnchorAssembly(opSponsor, "world1", "t1", Kind("PLUMBING"), "TURRET"); !IsCode(err, protocol.ErrTypeMismatch) {
		t.Fatalf("bogus kind: got %v", err)
	}
	if _, _, err := g.AnchorAssembly(opSponsor, "world1", "t1", KindDefense, "DOES_NOT_EXIST"); !IsCode(err, protocol.ErrNotFound) {
		t.Fatalf("unknown consumer type: got %v", err)
	}
	// TRAM_LINE is catalogued TRANSIT; anchoring it as DEFENSE is a lie.
	if _, _, err := g.AnchorAssembly(opSponsor, "world1", "t1", KindDefense, "TRAM_LINE"); !IsCode(err, protocol.ErrTypeMismatch) {
		t.Fatalf("kind/type mismatch: got %v", err)
	}
	if _, _, err := g.AnchorAssembly(Principal("rando"), "world1", "t1", KindDefense, "TURRET"); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("non-sponsor anchor: got %v", err)
	}

	h, _, err := g.AnchorAssembly(opSponsor, "world1", "t1", KindDefense, "TURRET")
	if err != nil {
		t.Fatalf("anchor: %v", err)
	}
	if s, _ := g.AssemblyStatus(h); s != StatusAnchored {
		t.Fatalf("fresh assembly status = %s, want ANCHORED", s)
	}
}

func TestAssemblyOnlineGates(t *testing.T) {
	g := newTestGrid(t)
	a, aTok := anchorTurret(t, g, "turretA")

	// Disconnected consumers cannot power up.
	if err := g.AssemblyOnline(aTok, a); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("online while disconnected: got %v", err)
	}

	src, srcTok := anchorReactor(t, g, "reactor1")
	if err := g.Connect(opSponsor, src, a); err != nil {
		t.Fatalf("connect: %v", err)
	}
	// Connected but the source is only ANCHORED.
	if err := g.AssemblyOnline(aTok, a); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("online with anchored source: got %v", err)
	}

	if err := g.StartProduction(srcTok, src); err != nil {
		t.Fatalf("start production: %v", err)
	}
	if err := g.SourceOnline(srcTok, src); err != nil {
		t.Fatalf("source online: %v", err)
	}

	// Wrong token holder.
	_, otherTok := anchorTurret(t, g, "turretB")
	if err := g.AssemblyOnline(otherTok, a); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("foreign token: got %v", err)
	}

	if err := g.AssemblyOnline(aTok, a); err != nil {
		t.Fatalf("online: %v", err)
	}
	if err := g.AssemblyOnline(aTok, a); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("double online: got %v", err)
	}
	st, _ := g.SourceSnapshot(src)
	if st.ReservedTotal != 10 {
		t.Fatalf("reserved = %d, want 10", st.ReservedTotal)
	}

	if err := g.AssemblyOffline(aTok, a); err != nil {
		t.Fatalf("offline: %v", err)
	}
	st, _ = g.SourceSnapshot(src)
	if st.ReservedTotal != 0 {
		t.Fatalf("reserved after offline = %d, want 0", st.ReservedTotal)
	}
	if err := g.AssemblyOffline(aTok, a); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("double offline: got %v", err)
	}
}

type denyAll struct{}

func (denyAll) Authorized(Handle) bool { return false }

func TestProximityHookBlocksOnline(t *testing.T) {
	g := newTestGrid(t)
	src, _ := powerUp(t, g, "reactor1")
	a, aTok := anchorTurret(t, g, "turretA")
	if err := g.Connect(opSponsor, src, a); err != nil {
		t.Fatalf("connect: %v", err)
	}
	g.SetProximityAuthorizer(denyAll{})
	if err := g.AssemblyOnline(aTok, a); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("denied proximity: got %v", err)
	}
	g.SetProximityAuthorizer(nil)
	if err := g.AssemblyOnline(aTok, a); err != nil {
		t.Fatalf("online without hook: %v", err)
	}
}

func TestRequirementOverridesApplyToNewReservations(t *testing.T) {
	g := newTestGrid(t)
	src, _ := powerUp(t, g, "reactor1")
	a, aTok := anchorTurret(t, g, "turretA")
	b, bTok := anchorTurret(t, g, "turretB")
	if err := g.Connect(opSponsor, src, a, b); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := g.AssemblyOnline(aTok, a); err != nil {
		t.Fatalf("online a: %v", err)
	}

	if err := g.SetRequirement(Principal("rando"), "TURRET", 95); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("non-sponsor override: got %v", err)
	}
	if err := g.SetRequirement(opSponsor, "TURRET", 95); err != nil {
		t.Fatalf("set requirement: %v", err)
	}

	// A's live reservation keeps its original 10 units; B's fresh attempt
	// sees the override and no longer fits.
	st, _ := g.SourceSnapshot(src)
	if st.ReservedTotal != 10 {
		t.Fatalf("existing reservation repriced: %d", st.ReservedTotal)
	}
	if err := g.AssemblyOnline(bTok, b); !IsCode(err, protocol.ErrNoCapacity) {
		t.Fatalf("online b under override: got %v", err)
	}

	if err := g.RemoveRequirement(opSponsor, "TURRET"); err != nil {
		t.Fatalf("remove requirement: %v", err)
	}
	// No requirement configured at all: power-up has nothing to price.
	if err := g.AssemblyOnline(bTok, b); !IsCode(err, protocol.ErrNotFound) {
		t.Fatalf("online without requirement: got %v", err)
	}
}

func TestUnanchorAssemblyReleasesResidual(t *testing.T) {
	g := newTestGrid(t)
	src, _ := powerUp(t, g, "reactor1")
	a, aTok := anchorTurret(t, g, "turretA")
	if err := g.Connect(opSponsor, src, a); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := g.AssemblyOnline(aTok, a); err != nil {
		t.Fatalf("online: %v", err)
	}

	// Online consumers cannot be unanchored.
	if err := g.UnanchorAssembly(opSponsor, a); !IsCode(err, protocol.ErrInvalidState) {
		t.Fatalf("unanchor online: got %v", err)
	}
	if err := g.AssemblyOffline(aTok, a); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if err := g.UnanchorAssembly(opSponsor, a); err != nil {
		t.Fatalf("unanchor: %v", err)
	}

	if _, err := g.AssemblyStatus(a); !IsCode(err, protocol.ErrNotFound) {
		t.Fatalf("assembly still present: %v", err)
	}
	st, _ := g.SourceSnapshot(src)
	if st.ReservedTotal != 0 {
		t.Fatalf("reserved after unanchor = %d, want 0", st.ReservedTotal)
	}
	if len(st.Connected) != 0 {
		t.Fatalf("source still lists %v as connected", st.Connected)
	}
	// The handle and token slots are free again.
	if g.Exists("world1", "turretA") {
		t.Fatalf("registry still holds the destroyed claim")
	}
	if _, _, err := g.AnchorAssembly(opSponsor, "world1", "turretA", KindDefense, "TURRET"); err != nil {
		t.Fatalf("re-anchor after unanchor: %v", err)
	}
}

func TestFuelOpsAreOwnerGated(t *testing.T) {
	g := newTestGrid(t)
	src, srcTok := anchorReactor(t, g, "reactor1")
	_, otherTok := anchorTurret(t, g, "turretA")

	if err := g.FuelDeposit(otherTok, src, "CRUDE_OIL", 10); !IsCode(err, protocol.ErrUnauthorized) {
		t.Fatalf("deposit with consumer token: got %v", err)
	}
	if err := g.FuelDeposit(srcTok, src, "CRUDE_OIL", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	fs, err := g.FuelSnapshot(src)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// CRUDE_OIL is catalogued at 50 percent.
	if fs.EffectiveIntervalMs != 500 {
		t.Fatalf("interval = %d, want 500", fs.EffectiveIntervalMs)
	}

	if err := g.StartBurning(srcTok, src, 1000); err != nil {
		t.Fatalf("start burning: %v", err)
	}
	if err := g.FuelUpdate(src, 2200); err != nil {
		t.Fatalf("update: %v", err)
	}
	fs, _ = g.FuelSnapshot(src)
	if fs.Quantity != 7 || fs.LeftoverMs != 200 {
		t.Fatalf("qty=%d leftover=%d, want 7/200", fs.Quantity, fs.LeftoverMs)
	}
	if fs.BurnStartMs != 1000 {
		t.Fatalf("burn start = %d, want 1000", fs.BurnStartMs)
	}
	if err := g.StopBurning(srcTok, src); err != nil {
		t.Fatalf("stop burning: %v", err)
	}
	fs, _ = g.FuelSnapshot(src)
	if fs.BurnStartMs != 0 {
		t.Fatalf("burn start = %d after stop, want 0", fs.BurnStartMs)
	}
	if err := g.FuelWithdraw(srcTok, src, 7); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	fs, _ = g.FuelSnapshot(src)
	if fs.Quantity != 0 || fs.FuelType != "" {
		t.Fatalf("tank not drained: qty=%d type=%q", fs.Quantity, fs.FuelType)
	}
}
