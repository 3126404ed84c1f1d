package errs

import "testing"

func TestAsConstraintMatchesOnlyConstraintError(t *testing.T) {
	existing := map[string]any{"_id": "a"}
	err := NewConstraintError("duplicate", existing)

	ce, ok := AsConstraint(err)
	if !ok {
		t.Fatalf("expected ok, got %T", err)
	}
	if ce.Msg != "duplicate" || ce.Existing["_id"] != "a" {
		t.Fatalf("unexpected ConstraintError contents: %+v", ce)
	}

	if _, ok := AsConstraint(NewNotFoundError("nope")); ok {
		t.Fatal("NotFoundError should not assert as ConstraintError")
	}
}

func TestAsNotFound(t *testing.T) {
	if _, ok := AsNotFound(NewTypeError("bad shape")); ok {
		t.Fatal("TypeError should not assert as NotFoundError")
	}
	if _, ok := AsNotFound(NewNotFoundError("missing")); !ok {
		t.Fatal("expected NotFoundError to assert ok")
	}
}

func TestAsInvalidStateCarriesSequences(t *testing.T) {
	err := NewInvalidStateErrorWithSeq("sequence mismatch", 3, 5)
	is, ok := AsInvalidState(err)
	if !ok {
		t.Fatalf("expected InvalidStateError, got %T", err)
	}
	if !is.HasSeqs || is.Expected != 3 || is.Actual != 5 {
		t.Fatalf("unexpected InvalidStateError contents: %+v", is)
	}

	plain := NewInvalidStateError("no config")
	isPlain, ok := AsInvalidState(plain)
	if !ok {
		t.Fatal("expected plain InvalidStateError to assert ok")
	}
	if isPlain.HasSeqs {
		t.Fatal("HasSeqs should be false when sequences were not supplied")
	}
}

func TestErrorMessagesFormat(t *testing.T) {
	err := NewTypeError("want %s, got %s", "string", "int")
	if err.Error() != "want string, got int" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}
