package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"edv-core/edv"
	"edv-core/internal/docs"
	"edv-core/internal/edvconfig"
	"edv-core/internal/fakecore"
	"edv-core/internal/idcodec"
	"edv-core/internal/query"
	"edv-core/internal/store"
)

func main() {
	// ---- create ----
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	createID := createCmd.String("id", "", "vault id (blank to auto-assign)")
	createController := createCmd.String("controller", "", "controller DID/URI")
	createMongoURI := createCmd.String("mongo", "", "MongoDB URI (optional, defaults to an in-memory engine)")
	createDB := createCmd.String("db", "edvdb", "Mongo database name")

	// ---- insert ----
	insertCmd := flag.NewFlagSet("insert", flag.ExitOnError)
	insertVault := insertCmd.String("vault", "", "vault id")
	insertDocID := insertCmd.String("doc", "", "document id")
	insertContent := insertCmd.String("content", "", "plaintext content to seal into the document")
	insertMongoURI := insertCmd.String("mongo", "", "MongoDB URI (optional)")
	insertDB := insertCmd.String("db", "edvdb", "Mongo database name")

	// ---- get ----
	getCmd := flag.NewFlagSet("get", flag.ExitOnError)
	getVault := getCmd.String("vault", "", "vault id")
	getDocID := getCmd.String("doc", "", "document id")
	getMongoURI := getCmd.String("mongo", "", "MongoDB URI (optional)")
	getDB := getCmd.String("db", "edvdb", "Mongo database name")

	// ---- find ----
	findCmd := flag.NewFlagSet("find", flag.ExitOnError)
	findVault := findCmd.String("vault", "", "vault id")
	findIndex := findCmd.String("index", "", "blinded index name (a hmac key id)")
	findName := findCmd.String("name", "", "blinded attribute name")
	findValue := findCmd.String("value", "", "blinded attribute value")
	findMongoURI := findCmd.String("mongo", "", "MongoDB URI (optional)")
	findDB := findCmd.String("db", "edvdb", "Mongo database name")

	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "create":
		_ = createCmd.Parse(os.Args[2:])
		dieIf(cmdCreate(*createID, *createController, *createMongoURI, *createDB))

	case "insert":
		_ = insertCmd.Parse(os.Args[2:])
		dieIf(cmdInsert(*insertVault, *insertDocID, *insertContent, *insertMongoURI, *insertDB))

	case "get":
		_ = getCmd.Parse(os.Args[2:])
		dieIf(cmdGet(*getVault, *getDocID, *getMongoURI, *getDB))

	case "find":
		_ = findCmd.Parse(os.Args[2:])
		dieIf(cmdFind(*findVault, *findIndex, *findName, *findValue, *findMongoURI, *findDB))

	default:
		usage()
	}
}

func usage() {
	fmt.Print(`edvctl commands:

  create  --id <EDV_ID> --controller <DID> [--mongo URI --db edvdb]
  insert  --vault <EDV_ID> --doc <DOC_ID> --content "plaintext" [--mongo URI --db edvdb]
  get     --vault <EDV_ID> --doc <DOC_ID> [--mongo URI --db edvdb]
  find    --vault <EDV_ID> --index <HMAC_ID> --name <NAME> --value <VALUE> [--mongo URI --db edvdb]

A master password is prompted on stdin for every command; this CLI drives
the storage engine through a fixed-key stand-in encryption core and exists
only to exercise the library end to end, not as a production tool.
`)
}

func buildEngine(mongoURI, db string) (store.Engine, error) {
	if mongoURI == "" {
		return store.NewMemoryEngine(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.DialMongoEngine(ctx, mongoURI, db)
}

// localKey derives a fixed 32-byte sealing key for the fake core from the
// master password, so the same password reopens the same sealed content
// across process runs against the same backing engine.
func localKey(password []byte) []byte {
	sum := sha256.Sum256(password)
	return sum[:]
}

func cmdCreate(id, controller, mongoURI, db string) error {
	if id == "" {
		generated, err := idcodec.RandomID()
		if err != nil {
			return err
		}
		id = generated
	}
	password, err := promptSecret("Master password: ")
	if err != nil {
		return err
	}
	defer zero(password)

	eng, err := buildEngine(mongoURI, db)
	if err != nil {
		return err
	}
	ctx := context.Background()
	sc := edv.NewStorageContext(eng)
	if err := sc.Initialize(ctx); err != nil {
		return err
	}

	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, id, localKey(password))
	if err != nil {
		return err
	}

	res, err := edv.CreateEdv(ctx, sc, core, edv.CreateEdvOpts{
		Config: edvconfig.Config{ID: id, Controller: controller},
		Password: string(password),
	})
	if err != nil {
		return err
	}
	b, _ := json.MarshalIndent(res.Config, "", "  ")
	fmt.Println(string(b))
	return nil
}

// openClient reconstructs a StorageContext, fake core, and unlocked client
// for an existing vault. It does not recreate the vault config — callers run
// after "create" has already persisted it to the same backing engine.
func openClient(ctx context.Context, edvID, mongoURI, db string, password []byte) (*edv.StorageContext, *fakecore.Core, *edv.PouchEdvClient, error) {
	eng, err := buildEngine(mongoURI, db)
	if err != nil {
		return nil, nil, nil, err
	}
	sc := edv.NewStorageContext(eng)
	if err := sc.Initialize(ctx); err != nil {
		return nil, nil, nil, err
	}
	core, err := fakecore.New(sc.Docs, sc.Chunks, sc.Configs, edvID, localKey(password))
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := edv.FromLocalSecrets(ctx, sc, core, edv.FromLocalSecretsOpts{EdvID: edvID, Password: string(password)})
	if err != nil {
		return nil, nil, nil, err
	}
	return sc, core, client, nil
}

func cmdInsert(edvID, docID, content, mongoURI, db string) error {
	if edvID == "" || docID == "" {
		return errors.New("--vault and --doc required")
	}
	password, err := promptSecret("Master password: ")
	if err != nil {
		return err
	}
	defer zero(password)

	ctx := context.Background()
	_, core, client, err := openClient(ctx, edvID, mongoURI, db, password)
	if err != nil {
		return err
	}

	jwe, err := core.SealContent([]byte(content))
	if err != nil {
		return err
	}
	if err := client.Insert(ctx, docs.Document{ID: docID, Sequence: 0, Jwe: jwe}); err != nil {
		return err
	}
	fmt.Println("Inserted document id:", docID)
	return nil
}

func cmdGet(edvID, docID, mongoURI, db string) error {
	if edvID == "" || docID == "" {
		return errors.New("--vault and --doc required")
	}
	password, err := promptSecret("Master password: ")
	if err != nil {
		return err
	}
	defer zero(password)

	ctx := context.Background()
	_, core, client, err := openClient(ctx, edvID, mongoURI, db, password)
	if err != nil {
		return err
	}

	doc, err := client.Get(ctx, docID)
	if err != nil {
		return err
	}
	plain, err := core.OpenContent(doc.Jwe)
	if err != nil {
		return err
	}
	fmt.Println(string(plain))
	return nil
}

func cmdFind(edvID, index, name, value, mongoURI, db string) error {
	if edvID == "" || index == "" || name == "" || value == "" {
		return errors.New("--vault, --index, --name, and --value required")
	}
	password, err := promptSecret("Master password: ")
	if err != nil {
		return err
	}
	defer zero(password)

	ctx := context.Background()
	_, _, client, err := openClient(ctx, edvID, mongoURI, db, password)
	if err != nil {
		return err
	}

	res, err := client.Find(ctx, query.AttributeQuery{
		Index:  index,
		Equals: []query.EqualsClause{{name: value}},
	})
	if err != nil {
		return err
	}
	b, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(b))
	return nil
}

func promptSecret(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	br := bufio.NewReader(os.Stdin)
	password, err := br.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(password) > 0 && password[len(password)-1] == '\n' {
		password = password[:len(password)-1]
	}
	return password, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func dieIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
