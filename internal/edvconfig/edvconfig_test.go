package edvconfig

import (
	"context"
	"testing"

	"edv-core/internal/errs"
	"edv-core/internal/secrets"
	"edv-core/internal/store"
)

func TestRepoInsertAndFindByController(t *testing.T) {
	ctx := context.Background()
	eng := store.NewMemoryEngine()
	r, err := New(ctx, eng, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	cfg := Config{
		ID:              "z1A7Cm48Z2kaBvXZzLT5RGxXn",
		Controller:      "did:example:alice",
		Sequence:        0,
		Hmac:            secrets.KeyRef{ID: "urn:uuid:1", Type: "Sha256HmacKey2019"},
		KeyAgreementKey: secrets.KeyRef{ID: "urn:uuid:2", Type: "X25519KeyAgreementKey2020"},
	}
	if _, err := r.Insert(ctx, cfg); err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := r.FindByController(ctx, "did:example:alice")
	if err != nil {
		t.Fatalf("findByController: %v", err)
	}
	if len(found) != 1 || found[0].ID != "z1A7Cm48Z2kaBvXZzLT5RGxXn" {
		t.Fatalf("expected one match for z1A7Cm48Z2kaBvXZzLT5RGxXn, got %+v", found)
	}
}

func TestRepoRejectsMissingKeyRefs(t *testing.T) {
	ctx := context.Background()
	eng := store.NewMemoryEngine()
	r, err := New(ctx, eng, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = r.Insert(ctx, Config{ID: "z1A7Cm48Z2kaBvXZzLT5RGxXn", Controller: "c"})
	if _, ok := errs.AsConstraint(err); ok {
		t.Fatal("did not expect a constraint error")
	}
	if err == nil {
		t.Fatal("expected validation error for missing key references")
	}
}
