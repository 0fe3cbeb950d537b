package reject

import (
	"errors"
	"testing"

	"github.com/barterchain/chainengine/internal/cyclefind"
	"github.com/barterchain/chainengine/internal/domain"
)

func TestFingerprintRotationInvariant(t *testing.T) {
	e1 := domain.Edge{FromUserID: 1, ItemID: 1}
	e2 := domain.Edge{FromUserID: 2, ItemID: 2}
	e3 := domain.Edge{FromUserID: 3, ItemID: 3}

	c1 := cyclefind.Cycle{Edges: []domain.Edge{e1, e2, e3}}
	c2 := cyclefind.Cycle{Edges: []domain.Edge{e3, e1, e2}}

	fp1 := Fingerprint(c1)
	fp2 := Fingerprint(c2)
	if fp1 != fp2 {
		t.Fatalf("expected rotation-invariant fingerprints, got %q vs %q", fp1, fp2)
	}
}

func TestFingerprintFormat(t *testing.T) {
	c := cyclefind.Cycle{Edges: []domain.Edge{{FromUserID: 1, ItemID: 1}}}
	fp := Fingerprint(c)
	if len(fp) < len("cycle_") || fp[:6] != "cycle_" {
		t.Errorf("expected fingerprint to start with cycle_, got %q", fp)
	}
}

type stubChecker struct {
	rejected map[string]bool
	err      error
}

func (s stubChecker) IsRejected(fp string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.rejected[fp], nil
}

func TestFilterDropsRejected(t *testing.T) {
	c := cyclefind.Cycle{Edges: []domain.Edge{{FromUserID: 1, ItemID: 1}, {FromUserID: 2, ItemID: 2}}}
	fp := Fingerprint(c)

	kept, err := Filter([]cyclefind.Cycle{c}, stubChecker{rejected: map[string]bool{fp: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("expected cycle to be filtered out, got %d", len(kept))
	}
}

func TestFilterPropagatesError(t *testing.T) {
	c := cyclefind.Cycle{Edges: []domain.Edge{{FromUserID: 1, ItemID: 1}}}
	_, err := Filter([]cyclefind.Cycle{c}, stubChecker{err: errors.New("boom")})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
