package selector

import (
	"testing"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

// fakeValidator fails any URL listed in failURLs, passes everything else,
// and always reports one warning so Select's "collect every candidate's
// checks" behavior is exercised.
type fakeValidator struct {
	failURLs map[string]bool
}

func (v *fakeValidator) Validate(url string, issuer store.CertificateContext, crl store.CRLLocator, opts store.ValidationOptions, sink store.ResultSink) {
	r := check.Result{Location: check.Location(url)}
	r.Warnings = append(r.Warnings, check.KeyedFinding{Key: check.ManifestLocationMismatch})
	if v.failURLs[url] {
		r.Failures = append(r.Failures, check.KeyedFinding{Key: check.CRLRequired})
	}
	sink.Report(r)
}

func obj(url string, number int64) store.RepositoryObject {
	return store.RepositoryObject{URL: url, Object: store.Object{CRLNumber: number}}
}

// TestInvariant4LargestValidCRLWins: among several valid CRL candidates,
// the one with the highest CRL number wins.
func TestInvariant4LargestValidCRLWins(t *testing.T) {
	candidates := []store.RepositoryObject{
		obj("rsync://repo/3.crl", 3),
		obj("rsync://repo/5.crl", 5),
		obj("rsync://repo/4.crl", 4),
	}
	v := &fakeValidator{failURLs: map[string]bool{"rsync://repo/5.crl": true}}

	res := Select(candidates, CRLNumber, store.CertificateContext{}, nil, v, nil)
	if res.Chosen == nil {
		t.Fatal("expected a chosen CRL")
	}
	if res.Chosen.URL != "rsync://repo/4.crl" {
		t.Fatalf("expected 4.crl to win (5 failed), got %s", res.Chosen.URL)
	}
	// every candidate was validated, so every candidate's warning is
	// present, plus the failure reported for 5.crl
	if len(res.Checks) != 4 {
		t.Fatalf("expected 4 checks (1 warning per candidate + 1 reject), got %d", len(res.Checks))
	}
}

func TestSelectNoneValid(t *testing.T) {
	candidates := []store.RepositoryObject{obj("rsync://repo/1.crl", 1)}
	v := &fakeValidator{failURLs: map[string]bool{"rsync://repo/1.crl": true}}

	res := Select(candidates, CRLNumber, store.CertificateContext{}, nil, v, nil)
	if res.Chosen != nil {
		t.Fatalf("expected no chosen candidate, got %v", res.Chosen)
	}
}

func TestSelectStableTieBreak(t *testing.T) {
	candidates := []store.RepositoryObject{
		obj("rsync://repo/a.crl", 5),
		obj("rsync://repo/b.crl", 5),
	}
	v := &fakeValidator{}

	res := Select(candidates, CRLNumber, store.CertificateContext{}, nil, v, nil)
	if res.Chosen == nil || res.Chosen.URL != "rsync://repo/a.crl" {
		t.Fatalf("expected stable tie-break to keep insertion order, got %v", res.Chosen)
	}
}
