package crosscheck

import (
	"testing"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

type memStore struct {
	objects map[string]store.RepositoryObject
}

func (m *memStore) GetCRLs(ski []byte) []store.RepositoryObject      { return nil }
func (m *memStore) GetManifests(ski []byte) []store.RepositoryObject { return nil }
func (m *memStore) GetObject(uri string) (store.RepositoryObject, bool) {
	o, ok := m.objects[uri]
	return o, ok
}

func issuerCtx(repoURI, manifestURI string) store.CertificateContext {
	return store.CertificateContext{
		Location:             "rsync://repo/ca.cer",
		SubjectKeyIdentifier: []byte{0xAB, 0xCD},
		RepositoryURI:        repoURI,
		ManifestURI:          manifestURI,
	}
}

func TestRunHappyPath(t *testing.T) {
	crl := store.RepositoryObject{URL: "rsync://repo/current.crl", Hash: store.Hash{1}, Object: store.Object{Kind: store.KindCRL}}
	roa := store.RepositoryObject{URL: "rsync://repo/x.roa", Hash: store.Hash{2}, Object: store.Object{Kind: store.KindROA}}
	child := store.RepositoryObject{URL: "rsync://repo/child.cer", Hash: store.Hash{3}, Object: store.Object{Kind: store.KindResourceCertificate}}

	st := &memStore{objects: map[string]store.RepositoryObject{
		"rsync://repo/current.crl": crl,
		"rsync://repo/x.roa":       roa,
		"rsync://repo/child.cer":   child,
	}}

	mft := store.RepositoryObject{
		URL: "rsync://repo/manifest.mft",
		Object: store.Object{
			Kind:       store.KindManifest,
			EntryOrder: []string{"current.crl", "x.roa", "child.cer"},
			Entries: map[string]store.Hash{
				"current.crl": {1},
				"x.roa":       {2},
				"child.cer":   {3},
			},
		},
	}

	issuer := issuerCtx("rsync://repo/", "rsync://repo/manifest.mft")
	res := Run(st, mft, crl, issuer)

	if len(res.Checks) != 0 {
		t.Fatalf("expected no checks, got %v", res.Checks)
	}
	if len(res.Objects.ROAs) != 1 || len(res.Objects.ChildCertificates) != 1 || len(res.Objects.CRLs) != 1 {
		t.Fatalf("unexpected classification: %+v", res.Objects)
	}
}

func TestRunMissingFile(t *testing.T) {
	st := &memStore{objects: map[string]store.RepositoryObject{}}
	mft := store.RepositoryObject{
		URL: "rsync://repo/manifest.mft",
		Object: store.Object{
			EntryOrder: []string{"missing.roa"},
			Entries:    map[string]store.Hash{"missing.roa": {9}},
		},
	}
	issuer := issuerCtx("rsync://repo/", "rsync://repo/manifest.mft")
	res := Run(st, mft, store.RepositoryObject{}, issuer)

	found := false
	for _, c := range res.Checks {
		if c.Key == check.ManifestFileNotFoundByAKI {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ManifestFileNotFoundByAKI, got %v", res.Checks)
	}
}

func TestRunHashMismatchReusesLocationMismatchKey(t *testing.T) {
	crl := store.RepositoryObject{URL: "rsync://repo/current.crl", Hash: store.Hash{1}, Object: store.Object{Kind: store.KindCRL}}
	obj := store.RepositoryObject{URL: "rsync://repo/x.roa", Hash: store.Hash{0xFF}, Object: store.Object{Kind: store.KindROA}}
	st := &memStore{objects: map[string]store.RepositoryObject{
		"rsync://repo/current.crl": crl,
		"rsync://repo/x.roa":       obj,
	}}
	mft := store.RepositoryObject{
		URL: "rsync://repo/manifest.mft",
		Object: store.Object{
			EntryOrder: []string{"current.crl", "x.roa"},
			Entries:    map[string]store.Hash{"current.crl": {1}, "x.roa": {0x01}},
		},
	}
	issuer := issuerCtx("rsync://repo/", "rsync://repo/manifest.mft")
	res := Run(st, mft, crl, issuer)

	if len(res.Checks) != 1 || res.Checks[0].Key != check.ManifestLocationMismatch {
		t.Fatalf("expected a single ManifestLocationMismatch, got %v", res.Checks)
	}
	if len(res.Objects.ROAs) != 0 {
		t.Fatalf("mismatched object must not be classified")
	}
}

// TestTwoCRLsOnManifest: a manifest declaring two CRL entries produces
// a "Single CRL expected" does-not-contain-file warning listing both
// URLs, rather than picking one arbitrarily.
func TestTwoCRLsOnManifest(t *testing.T) {
	crl1 := store.RepositoryObject{URL: "rsync://repo/1.crl", Hash: store.Hash{1}, Object: store.Object{Kind: store.KindCRL}}
	crl2 := store.RepositoryObject{URL: "rsync://repo/2.crl", Hash: store.Hash{2}, Object: store.Object{Kind: store.KindCRL}}
	st := &memStore{objects: map[string]store.RepositoryObject{
		"rsync://repo/1.crl": crl1,
		"rsync://repo/2.crl": crl2,
	}}
	mft := store.RepositoryObject{
		URL: "rsync://repo/manifest.mft",
		Object: store.Object{
			EntryOrder: []string{"1.crl", "2.crl"},
			Entries:    map[string]store.Hash{"1.crl": {1}, "2.crl": {2}},
		},
	}
	issuer := issuerCtx("rsync://repo/", "rsync://repo/manifest.mft")
	res := Run(st, mft, crl1, issuer)

	var found bool
	for _, c := range res.Checks {
		if c.Key == check.ManifestDoesNotContainFile && len(c.Params) == 1 {
			if want := "Single CRL expected, found: rsync://repo/1.crl, rsync://repo/2.crl"; c.Params[0] == want {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected the two-CRL warning with comma-joined URLs, got %v", res.Checks)
	}
}

func TestManifestURLCaseInsensitiveMatch(t *testing.T) {
	st := &memStore{objects: map[string]store.RepositoryObject{}}
	mft := store.RepositoryObject{URL: "rsync://repo/MANIFEST.mft", Object: store.Object{}}
	issuer := issuerCtx("rsync://repo/", "rsync://repo/manifest.MFT")
	res := Run(st, mft, store.RepositoryObject{}, issuer)

	for _, c := range res.Checks {
		if c.Key == check.ManifestLocationMismatch && len(c.Params) == 0 {
			t.Fatalf("expected case-insensitive match to not warn, got %v", res.Checks)
		}
	}
}
