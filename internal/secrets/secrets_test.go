package secrets

import (
	"testing"

	"edv-core/internal/errs"
)

func TestGenerateDefaultsToRecommendedCipher(t *testing.T) {
	res, err := Generate(GenerateOpts{ID: "vault1", Password: "correct horse battery staple"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Keys.CipherVersion != CipherRecommended {
		t.Fatalf("expected recommended cipher, got %q", res.Keys.CipherVersion)
	}
	if res.Keys.X25519 == nil || res.Keys.P256 != nil {
		t.Fatal("expected only X25519 key material for the recommended cipher")
	}
	if res.Config.Secret.WrappedKeyAgreementKey != "" {
		t.Fatal("recommended cipher should not persist a wrapped key agreement key")
	}
}

func TestGenerateFipsCipherProducesP256(t *testing.T) {
	res, err := Generate(GenerateOpts{ID: "vault1", Password: "hunter2", CipherVersion: CipherFips})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Keys.CipherVersion != CipherFips {
		t.Fatalf("expected fips cipher, got %q", res.Keys.CipherVersion)
	}
	if res.Keys.P256 == nil || res.Keys.X25519 != nil {
		t.Fatal("expected only P256 key material for the fips cipher")
	}
	if res.Config.Secret.WrappedKeyAgreementKey == "" {
		t.Fatal("fips cipher must persist a wrapped key agreement key")
	}
}

func TestGenerateRejectsUnsupportedCipher(t *testing.T) {
	if _, err := Generate(GenerateOpts{ID: "vault1", Password: "x", CipherVersion: "quantum"}); err == nil {
		t.Fatal("expected an error for an unsupported cipher version")
	}
}

func TestDecryptRoundTripsRecommendedCipher(t *testing.T) {
	gen, err := Generate(GenerateOpts{ID: "vault1", Password: "correct horse battery staple"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	keys, ok, err := Decrypt(DecryptOpts{Config: gen.Config, Password: "correct horse battery staple"})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for the correct password")
	}
	if keys.Hmac.ID != gen.Config.HmacID {
		t.Fatalf("hmac id mismatch: got %q want %q", keys.Hmac.ID, gen.Config.HmacID)
	}
	if keys.X25519 == nil || keys.X25519.ID != gen.Config.KeyAgreementKeyID {
		t.Fatal("expected the recovered x25519 key to carry the persisted key agreement id")
	}
}

func TestDecryptRoundTripsFipsCipher(t *testing.T) {
	gen, err := Generate(GenerateOpts{ID: "vault1", Password: "hunter2", CipherVersion: CipherFips})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	keys, ok, err := Decrypt(DecryptOpts{Config: gen.Config, Password: "hunter2"})
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true for the correct password")
	}
	if keys.P256 == nil || keys.P256.ID != gen.Config.KeyAgreementKeyID {
		t.Fatal("expected the recovered p256 key to carry the persisted key agreement id")
	}
}

func TestDecryptWrongPasswordIsNotAnError(t *testing.T) {
	gen, err := Generate(GenerateOpts{ID: "vault1", Password: "correct horse battery staple"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	keys, ok, err := Decrypt(DecryptOpts{Config: gen.Config, Password: "wrong password"})
	if err != nil {
		t.Fatalf("expected no error for a wrong password, got %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a wrong password")
	}
	if keys != nil {
		t.Fatal("expected nil keys for a wrong password")
	}
}

func TestAssertRequiresCoreFields(t *testing.T) {
	cfg := Config{Secret: Secret{Version: Version, Salt: "s", WrappedKey: "w"}}
	err := Assert(cfg)
	if err == nil {
		t.Fatal("expected an error for a config missing id/hmacId/keyAgreementKeyId")
	}
	if _, ok := err.(*errs.TypeError); !ok {
		t.Fatalf("expected a *errs.TypeError, got %T", err)
	}
}

func TestAssertAcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{
		ID:                "vault1",
		HmacID:            "urn:uuid:abc",
		KeyAgreementKeyID: "urn:uuid:def",
		Secret:            Secret{Version: Version, Salt: "s", WrappedKey: "w"},
	}
	if err := Assert(cfg); err != nil {
		t.Fatalf("expected a well-formed config to pass, got %v", err)
	}
}
