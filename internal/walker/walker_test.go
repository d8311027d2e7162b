package walker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/fetch"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

type fakeFetcher struct{}

func (fakeFetcher) FetchRepo(ctx context.Context, uri string) error                  { return nil }
func (fakeFetcher) FetchTrustAnchorCertificate(ctx context.Context, uri string) error { return nil }

type memStore struct {
	crlsBySKI map[string][]store.RepositoryObject
	mftsBySKI map[string][]store.RepositoryObject
	objects   map[string]store.RepositoryObject
}

func newMemStore() *memStore {
	return &memStore{
		crlsBySKI: make(map[string][]store.RepositoryObject),
		mftsBySKI: make(map[string][]store.RepositoryObject),
		objects:   make(map[string]store.RepositoryObject),
	}
}

func (m *memStore) GetCRLs(ski []byte) []store.RepositoryObject {
	return m.crlsBySKI[string(ski)]
}

func (m *memStore) GetManifests(ski []byte) []store.RepositoryObject {
	return m.mftsBySKI[string(ski)]
}

func (m *memStore) GetObject(uri string) (store.RepositoryObject, bool) {
	o, ok := m.objects[uri]
	return o, ok
}

// passValidator reports no findings for any object, i.e. everything
// validates cleanly.
type passValidator struct{}

func (passValidator) Validate(url string, issuer store.CertificateContext, crl store.CRLLocator, opts store.ValidationOptions, sink store.ResultSink) {
	sink.Report(check.Result{Location: check.Location(url)})
}

func newFetchSvc(f store.RepoFetcher) *fetch.Service {
	return fetch.NewService(f, time.Hour, rate.NewLimiter(rate.Inf, 1), zerolog.Nop())
}

func rootIssuer(ski []byte, repoURI, manifestURI string) store.CertificateContext {
	return store.CertificateContext{
		Location:             check.Location("rsync://repo/root.cer"),
		Certificate:          store.RepositoryObject{URL: "rsync://repo/root.cer", Object: store.Object{IsCA: true}},
		SubjectKeyIdentifier: ski,
		RepositoryURI:        repoURI,
		ManifestURI:          manifestURI,
	}
}

// TestNoCRLsRejects: a CA publishes no CRL at
// all, so the walk must stop with a single CRLRequired Reject and an
// empty object map.
func TestNoCRLsRejects(t *testing.T) {
	st := newMemStore()
	ski := []byte{0x01}
	issuer := rootIssuer(ski, "rsync://repo/", "rsync://repo/manifest.mft")

	w := New(issuer, st, newFetchSvc(fakeFetcher{}), passValidator{}, nil, NewSeen(), time.Now(), zerolog.Nop())
	res := w.Walk(context.Background())

	require.Empty(t, res.Objects)
	require.Len(t, res.Checks, 1)
	require.Equal(t, check.CRLRequired, res.Checks[0].Key)
	require.True(t, res.Checks[0].IsReject())
}

// TestValidCRLNoManifestWarns: a valid CRL exists
// but no manifest validates, so the walk stops with a single
// CAShouldHaveManifest Warning and an empty object map.
func TestValidCRLNoManifestWarns(t *testing.T) {
	st := newMemStore()
	ski := []byte{0x02}
	crl := store.RepositoryObject{URL: "rsync://repo/current.crl", Object: store.Object{Kind: store.KindCRL, CRLNumber: 1}}
	st.crlsBySKI[string(ski)] = []store.RepositoryObject{crl}

	issuer := rootIssuer(ski, "rsync://repo/", "rsync://repo/manifest.mft")
	w := New(issuer, st, newFetchSvc(fakeFetcher{}), passValidator{}, nil, NewSeen(), time.Now(), zerolog.Nop())
	res := w.Walk(context.Background())

	require.Empty(t, res.Objects)
	require.Len(t, res.Checks, 1)
	require.Equal(t, check.CAShouldHaveManifest, res.Checks[0].Key)
	require.False(t, res.Checks[0].IsReject())
}

// TestWalkHappyPathWithRecursion exercises a two-level tree: root CA ->
// child CA -> ROA, verifying the child's ROA ends up in the merged
// object map under its own URI.
func TestWalkHappyPathWithRecursion(t *testing.T) {
	st := newMemStore()
	rootSKI := []byte{0xAA}
	childSKI := []byte{0xBB}

	rootCRL := store.RepositoryObject{URL: "rsync://repo/root.crl", Object: store.Object{Kind: store.KindCRL, CRLNumber: 1}}
	st.crlsBySKI[string(rootSKI)] = []store.RepositoryObject{rootCRL}

	childCert := store.RepositoryObject{
		URL:  "rsync://repo/child.cer",
		Hash: store.Hash{0x03},
		Object: store.Object{
			Kind:                 store.KindResourceCertificate,
			IsCA:                 true,
			SubjectKeyIdentifier: childSKI,
			RepositoryURI:        "rsync://repo/child/",
			ManifestURI:          "rsync://repo/child/manifest.mft",
		},
	}
	st.objects["rsync://repo/child.cer"] = childCert

	rootMft := store.RepositoryObject{
		URL: "rsync://repo/manifest.mft",
		Object: store.Object{
			Kind:       store.KindManifest,
			ManifestNumber: 1,
			EntryOrder: []string{"root.crl", "child.cer"},
			Entries: map[string]store.Hash{
				"root.crl":  rootCRL.Hash,
				"child.cer": childCert.Hash,
			},
		},
	}
	st.mftsBySKI[string(rootSKI)] = []store.RepositoryObject{rootMft}

	childCRL := store.RepositoryObject{URL: "rsync://repo/child/current.crl", Object: store.Object{Kind: store.KindCRL, CRLNumber: 1}}
	st.crlsBySKI[string(childSKI)] = []store.RepositoryObject{childCRL}

	roa := store.RepositoryObject{URL: "rsync://repo/child/x.roa", Hash: store.Hash{0x09}, Object: store.Object{Kind: store.KindROA}}
	st.objects["rsync://repo/child/x.roa"] = roa

	childMft := store.RepositoryObject{
		URL: "rsync://repo/child/manifest.mft",
		Object: store.Object{
			Kind:           store.KindManifest,
			ManifestNumber: 1,
			EntryOrder:     []string{"current.crl", "x.roa"},
			Entries: map[string]store.Hash{
				"current.crl": childCRL.Hash,
				"x.roa":       roa.Hash,
			},
		},
	}
	st.mftsBySKI[string(childSKI)] = []store.RepositoryObject{childMft}

	issuer := rootIssuer(rootSKI, "rsync://repo/", "rsync://repo/manifest.mft")
	w := New(issuer, st, newFetchSvc(fakeFetcher{}), passValidator{}, nil, NewSeen(), time.Now(), zerolog.Nop())
	res := w.Walk(context.Background())

	require.Contains(t, res.Objects, "rsync://repo/child/x.roa")
}

// TestWalkSkipsAlreadySeenChild mirrors invariant 2 (no SKI walked
// twice): a child certificate reusing the root's own SKI must not be
// recursed into again.
func TestWalkSkipsAlreadySeenChild(t *testing.T) {
	st := newMemStore()
	rootSKI := []byte{0xAA}

	rootCRL := store.RepositoryObject{URL: "rsync://repo/root.crl", Object: store.Object{Kind: store.KindCRL, CRLNumber: 1}}
	st.crlsBySKI[string(rootSKI)] = []store.RepositoryObject{rootCRL}

	// a "child" certificate that (incorrectly) reuses the root's SKI.
	childCert := store.RepositoryObject{
		URL:  "rsync://repo/dup.cer",
		Hash: store.Hash{0x04},
		Object: store.Object{
			Kind:                 store.KindResourceCertificate,
			IsCA:                 true,
			SubjectKeyIdentifier: rootSKI,
			RepositoryURI:        "rsync://repo/dup/",
		},
	}
	st.objects["rsync://repo/dup.cer"] = childCert

	rootMft := store.RepositoryObject{
		URL: "rsync://repo/manifest.mft",
		Object: store.Object{
			Kind:           store.KindManifest,
			ManifestNumber: 1,
			EntryOrder:     []string{"root.crl", "dup.cer"},
			Entries: map[string]store.Hash{
				"root.crl": rootCRL.Hash,
				"dup.cer":  childCert.Hash,
			},
		},
	}
	st.mftsBySKI[string(rootSKI)] = []store.RepositoryObject{rootMft}

	issuer := rootIssuer(rootSKI, "rsync://repo/", "rsync://repo/manifest.mft")
	seen := NewSeen()
	w := New(issuer, st, newFetchSvc(fakeFetcher{}), passValidator{}, nil, seen, time.Now(), zerolog.Nop())
	res := w.Walk(context.Background())

	require.NotContains(t, res.Objects, "rsync://repo/dup.cer")
	require.Equal(t, 1, seen.Len())
}

// TestNewPanicsOnNonCAIssuer enforces the entry precondition: issuer must
// be an object-issuing CA certificate.
func TestNewPanicsOnNonCAIssuer(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a non-CA issuer")
		}
	}()
	st := newMemStore()
	issuer := store.CertificateContext{
		Certificate:          store.RepositoryObject{Object: store.Object{IsCA: false}},
		SubjectKeyIdentifier: []byte{0x01},
	}
	New(issuer, st, newFetchSvc(fakeFetcher{}), passValidator{}, nil, NewSeen(), time.Now(), zerolog.Nop())
}

// TestNewPanicsOnDuplicateEntry enforces the entry precondition: issuer's
// SKI must not already be in seen.
func TestNewPanicsOnDuplicateEntry(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a duplicate SKI at entry")
		}
	}()
	st := newMemStore()
	ski := []byte{0x01}
	issuer := rootIssuer(ski, "rsync://repo/", "rsync://repo/manifest.mft")
	seen := NewSeen()
	seen.add(issuer.SKIHex())
	New(issuer, st, newFetchSvc(fakeFetcher{}), passValidator{}, nil, seen, time.Now(), zerolog.Nop())
}
