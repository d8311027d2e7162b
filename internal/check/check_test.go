package check

import "testing"

func TestListHasRejects(t *testing.T) {
	l := List{
		NewWarning("rsync://repo/a.mft", CAShouldHaveManifest),
	}
	if l.HasRejects() {
		t.Fatalf("expected no rejects")
	}

	l = append(l, NewReject("rsync://repo/b.crl", CRLRequired))
	if !l.HasRejects() {
		t.Fatalf("expected a reject")
	}
	if len(l.Rejects()) != 1 {
		t.Fatalf("expected 1 reject, got %d", len(l.Rejects()))
	}
	if len(l.Warnings()) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(l.Warnings()))
	}
}

func TestTranslate(t *testing.T) {
	r := Result{
		Location: "rsync://repo/object.roa",
		Warnings: []KeyedFinding{{Key: ManifestLocationMismatch, Params: []string{"a", "b"}}},
		Failures: []KeyedFinding{{Key: CRLRequired}},
	}

	got := Translate(r)
	if len(got) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(got))
	}
	if got[0].Severity != Warning || got[0].Key != ManifestLocationMismatch {
		t.Fatalf("unexpected first check: %+v", got[0])
	}
	if got[1].Severity != Reject || got[1].Key != CRLRequired {
		t.Fatalf("unexpected second check: %+v", got[1])
	}
}
