package edv_test

import (
	"context"
	"fmt"
	"testing"

	"edv-core/edv"
	"edv-core/internal/docs"
	"edv-core/internal/edvconfig"
	"edv-core/internal/errs"
	"edv-core/internal/fakecore"
	"edv-core/internal/query"
	"edv-core/internal/secrets"
	"edv-core/internal/store"
)

func newTestClient(t *testing.T, edvID string) (*edv.StorageContext, *fakecore.Core, *edv.PouchEdvClient) {
	t.Helper()
	ctx := context.Background()
	sc := edv.NewStorageContext(store.NewMemoryEngine())
	if err := sc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, edvID, key)
	if err != nil {
		t.Fatalf("fakecore.New: %v", err)
	}

	res, err := edv.CreateEdv(ctx, sc, core, edv.CreateEdvOpts{
		Config:   edvconfig.Config{ID: edvID, Controller: "did:example:controller"},
		Password: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	if res.Client == nil {
		t.Fatal("CreateEdv returned a nil client despite a password")
	}
	return sc, core, res.Client
}

func TestCreateEdvRejectsPresetKeyRefs(t *testing.T) {
	ctx := context.Background()
	sc := edv.NewStorageContext(store.NewMemoryEngine())
	if err := sc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := edv.CreateEdv(ctx, sc, nil, edv.CreateEdvOpts{
		Config: edvconfig.Config{
			ID:              "did:example:v1",
			Hmac:            secrets.KeyRef{ID: "urn:uuid:x", Type: "Sha256HmacKey2019"},
			KeyAgreementKey: secrets.KeyRef{ID: "urn:uuid:y", Type: "X25519KeyAgreementKey2019"},
		},
		Password: "whatever",
	})
	if err == nil {
		t.Fatal("expected an error for preset key refs alongside a password")
	}
}

func TestInsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, core, client := newTestClient(t, "z19joYmweQuRKBYPpSe8ochoX")

	jwe, err := core.SealContent([]byte(`{"hello":"world"}`))
	if err != nil {
		t.Fatalf("SealContent: %v", err)
	}

	doc := docs.Document{ID: "z1A7tcy3M6zuhvnJ8SySYBq8V", Sequence: 0, Jwe: jwe}
	if err := client.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := client.Get(ctx, "z1A7tcy3M6zuhvnJ8SySYBq8V")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	plain, err := core.OpenContent(got.Jwe)
	if err != nil {
		t.Fatalf("OpenContent: %v", err)
	}
	if string(plain) != `{"hello":"world"}` {
		t.Fatalf("round-tripped plaintext mismatch: %s", plain)
	}
}

func TestUpdateRequiresMatchingSequence(t *testing.T) {
	ctx := context.Background()
	_, core, client := newTestClient(t, "z19pG7nLQ2E6QMVT5feP3RWiv")

	jwe, _ := core.SealContent([]byte("v0"))
	doc := docs.Document{ID: "z1A7tcy3M6zuhvnJ8SySYBq8V", Sequence: 0, Jwe: jwe}
	if err := client.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	stale := docs.Document{ID: "z1A7tcy3M6zuhvnJ8SySYBq8V", Sequence: 5, Jwe: jwe}
	if err := client.Update(ctx, stale); err == nil {
		t.Fatal("expected a sequence mismatch error")
	}

	next, _ := core.SealContent([]byte("v1"))
	ok := docs.Document{ID: "z1A7tcy3M6zuhvnJ8SySYBq8V", Sequence: 1, Jwe: next}
	if err := client.Update(ctx, ok); err != nil {
		t.Fatalf("Update with the correct next sequence: %v", err)
	}
}

func TestDeleteThenPurgeRemovesRecord(t *testing.T) {
	ctx := context.Background()
	sc, core, client := newTestClient(t, "z19zQ3btdgm22Ui6ngYDdxTTp")

	jwe, _ := core.SealContent([]byte("gone soon"))
	doc := docs.Document{ID: "z1A7tcy3M6zuhvnJ8SySYBq8V", Sequence: 0, Jwe: jwe}
	if err := client.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := client.Delete(ctx, docs.Document{ID: "z1A7tcy3M6zuhvnJ8SySYBq8V", Sequence: 1, Jwe: jwe}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	sc.Purge.Purge(ctx, docs.Collection)

	if _, err := client.Get(ctx, "z1A7tcy3M6zuhvnJ8SySYBq8V"); err == nil {
		t.Fatal("expected the purged document to be gone")
	}
}

func TestFindByAttribute(t *testing.T) {
	ctx := context.Background()
	_, core, client := newTestClient(t, "z1A3X99qEvC1mo7QH7zrNNdyR")

	jwe, _ := core.SealContent([]byte("indexed"))
	doc := docs.Document{
		ID:       "z1A7tcy3M6zuhvnJ8SySYBq8V",
		Sequence: 0,
		Jwe:      jwe,
		Indexed: []docs.IndexedEntry{{
			HmacID:   "urn:uuid:hmac1",
			HmacType: "Sha256HmacKey2019",
			Sequence: 0,
			Attributes: []docs.Attribute{
				{Name: "enc1", Value: "enc1val", Unique: true},
			},
		}},
	}
	if err := client.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res, err := client.Find(ctx, query.AttributeQuery{
		Index:  "urn:uuid:hmac1",
		Equals: []query.EqualsClause{{"enc1": "enc1val"}},
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("expected 1 match, got %d", len(res.Documents))
	}
}

// TestCreateEdvReusesPregeneratedSecret covers a vault whose secret was
// generated and stored ahead of createEdv, e.g. by a prior partial run: the
// same password must unlock the existing secret rather than fail on the
// duplicate insert.
func TestCreateEdvReusesPregeneratedSecret(t *testing.T) {
	ctx := context.Background()
	edvID := "z1AFFoVW5GvrwLWytCkEUF1nU"
	sc := edv.NewStorageContext(store.NewMemoryEngine())
	if err := sc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	gen, err := secrets.Generate(secrets.GenerateOpts{ID: edvID, Password: "pregenerated pw"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := sc.Secrets.Insert(ctx, gen.Config); err != nil {
		t.Fatalf("pre-insert secret: %v", err)
	}

	key := make([]byte, 32)
	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, edvID, key)
	if err != nil {
		t.Fatalf("fakecore.New: %v", err)
	}

	res, err := edv.CreateEdv(ctx, sc, core, edv.CreateEdvOpts{
		Config:   edvconfig.Config{ID: edvID, Controller: "did:example:controller"},
		Password: "pregenerated pw",
	})
	if err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}
	if res.Client == nil {
		t.Fatal("expected a non-nil client when reusing a pregenerated secret")
	}
	if res.Config.Hmac.ID != gen.Config.HmacID {
		t.Fatalf("expected reused hmac id %q, got %q", gen.Config.HmacID, res.Config.Hmac.ID)
	}
	if res.Config.KeyAgreementKey.ID != gen.Config.KeyAgreementKeyID {
		t.Fatalf("expected reused key agreement key id %q, got %q", gen.Config.KeyAgreementKeyID, res.Config.KeyAgreementKey.ID)
	}
}

// TestCreateEdvWithPregeneratedSecretWrongPassword covers the same setup as
// TestCreateEdvReusesPregeneratedSecret, but with a password that does not
// unlock the existing secret.
func TestCreateEdvWithPregeneratedSecretWrongPassword(t *testing.T) {
	ctx := context.Background()
	edvID := "z1AFm2eMAHQaZS2MfMVyydiSi"
	sc := edv.NewStorageContext(store.NewMemoryEngine())
	if err := sc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	gen, err := secrets.Generate(secrets.GenerateOpts{ID: edvID, Password: "pregenerated pw"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := sc.Secrets.Insert(ctx, gen.Config); err != nil {
		t.Fatalf("pre-insert secret: %v", err)
	}

	key := make([]byte, 32)
	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, edvID, key)
	if err != nil {
		t.Fatalf("fakecore.New: %v", err)
	}

	_, err = edv.CreateEdv(ctx, sc, core, edv.CreateEdvOpts{
		Config:   edvconfig.Config{ID: edvID, Controller: "did:example:controller"},
		Password: "wrong pw",
	})
	want := fmt.Sprintf("Secret already exists for EDV ID (%s) but password to unlock it is invalid.", edvID)
	if err == nil || err.Error() != want {
		t.Fatalf("expected error %q, got %v", want, err)
	}
}

// TestCreateEdvDuplicateReturnsDuplicateError covers a second createEdv call
// against a vault id that already has a config on disk.
func TestCreateEdvDuplicateReturnsDuplicateError(t *testing.T) {
	ctx := context.Background()
	edvID := "z1AAuJaiAuwrua3BwJaFiqoJr"
	sc := edv.NewStorageContext(store.NewMemoryEngine())
	if err := sc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := make([]byte, 32)
	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, edvID, key)
	if err != nil {
		t.Fatalf("fakecore.New: %v", err)
	}

	opts := edv.CreateEdvOpts{
		Config:   edvconfig.Config{ID: edvID, Controller: "did:example:controller"},
		Password: "correct horse battery staple",
	}
	if _, err := edv.CreateEdv(ctx, sc, core, opts); err != nil {
		t.Fatalf("first CreateEdv: %v", err)
	}

	_, err = edv.CreateEdv(ctx, sc, core, opts)
	if err == nil || err.Error() != "Duplicate EDV configuration." {
		t.Fatalf("expected %q, got %v", "Duplicate EDV configuration.", err)
	}
	if _, ok := err.(*errs.DuplicateError); !ok {
		t.Fatalf("expected a *errs.DuplicateError, got %T", err)
	}
}

// TestFindPaginationSetsHasMore covers Find's limit/HasMore contract when
// more documents match than the caller's limit allows through.
func TestFindPaginationSetsHasMore(t *testing.T) {
	ctx := context.Background()
	_, core, client := newTestClient(t, "z1A72rJsyXNk85SwaCo32dmmG")

	docIDs := []string{
		"z19tzugP9UWUYPYYXWmf77ndR",
		"z19owhrfjCt1iWwTK1h9tcV1n",
		"z1AEM7tzy9hxbjSs3M8MDTDWA",
	}
	for _, id := range docIDs {
		jwe, err := core.SealContent([]byte("paged " + id))
		if err != nil {
			t.Fatalf("SealContent: %v", err)
		}
		doc := docs.Document{
			ID:       id,
			Sequence: 0,
			Jwe:      jwe,
			Indexed: []docs.IndexedEntry{{
				HmacID:   "urn:uuid:hmacPage",
				HmacType: "Sha256HmacKey2019",
				Attributes: []docs.Attribute{
					{Name: "status", Value: "active"},
				},
			}},
		}
		if err := client.Insert(ctx, doc); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}

	res, err := client.Find(ctx, query.AttributeQuery{
		Index:  "urn:uuid:hmacPage",
		Equals: []query.EqualsClause{{"status": "active"}},
		Limit:  2,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(res.Documents) != 2 {
		t.Fatalf("expected 2 documents with limit 2, got %d", len(res.Documents))
	}
	if !res.HasMore {
		t.Fatal("expected HasMore true when more documents match than the limit")
	}

	all, err := client.Find(ctx, query.AttributeQuery{
		Index:  "urn:uuid:hmacPage",
		Equals: []query.EqualsClause{{"status": "active"}},
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(all.Documents) != 3 {
		t.Fatalf("expected 3 documents with limit 10, got %d", len(all.Documents))
	}
	if all.HasMore {
		t.Fatal("expected HasMore false when the limit covers every match")
	}
}

// TestFromLocalSecretsUnlocksExistingVault covers reopening a vault created
// in an earlier process, deriving keys from the stored secret rather than
// generating a fresh one.
func TestFromLocalSecretsUnlocksExistingVault(t *testing.T) {
	ctx := context.Background()
	edvID := "z1ACp8GUKtVFDq9Tux3z3hyeV"
	sc := edv.NewStorageContext(store.NewMemoryEngine())
	if err := sc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := make([]byte, 32)
	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, edvID, key)
	if err != nil {
		t.Fatalf("fakecore.New: %v", err)
	}

	if _, err := edv.CreateEdv(ctx, sc, core, edv.CreateEdvOpts{
		Config:   edvconfig.Config{ID: edvID, Controller: "did:example:controller"},
		Password: "reopen me",
	}); err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}

	reopened, err := edv.FromLocalSecrets(ctx, sc, core, edv.FromLocalSecretsOpts{
		EdvID:    edvID,
		Password: "reopen me",
	})
	if err != nil {
		t.Fatalf("FromLocalSecrets: %v", err)
	}

	jwe, err := core.SealContent([]byte("reopened content"))
	if err != nil {
		t.Fatalf("SealContent: %v", err)
	}
	doc := docs.Document{ID: "z19yTAB1moZ2UTZNPoXNXgxLE", Sequence: 0, Jwe: jwe}
	if err := reopened.Insert(ctx, doc); err != nil {
		t.Fatalf("Insert after FromLocalSecrets unlock: %v", err)
	}
}

// TestFromLocalSecretsRejectsWrongPassword covers FromLocalSecrets against
// an existing vault when the supplied password does not unwrap its secret.
func TestFromLocalSecretsRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	edvID := "z19w4goPxf2YhCPW5wy8r2ULC"
	sc := edv.NewStorageContext(store.NewMemoryEngine())
	if err := sc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	key := make([]byte, 32)
	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, edvID, key)
	if err != nil {
		t.Fatalf("fakecore.New: %v", err)
	}

	if _, err := edv.CreateEdv(ctx, sc, core, edv.CreateEdvOpts{
		Config:   edvconfig.Config{ID: edvID, Controller: "did:example:controller"},
		Password: "reopen me",
	}); err != nil {
		t.Fatalf("CreateEdv: %v", err)
	}

	_, err = edv.FromLocalSecrets(ctx, sc, core, edv.FromLocalSecretsOpts{
		EdvID:    edvID,
		Password: "not the password",
	})
	if err == nil || err.Error() != "Invalid password." {
		t.Fatalf("expected %q, got %v", "Invalid password.", err)
	}
}
