// Package fixturestore is a reference, in-memory Storage and RepoFetcher
// backed by one bundled JSON fixture file. The on-disk object store and
// the rsync/RRDP fetcher are external collaborators this repository
// never implements; this package is the stand-in used
// by the CLI's demo subcommands (validate, report, serve-rtr).
//
// The fixture uses buger/jsonparser instead of encoding/json so a large
// bundled fixture (many certificates, manifests, CRLs, ROAs) parses
// without building an intermediate struct tree per object.
package fixturestore

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/yaoyj11/rpki-validator/internal/store"
)

// Store is an immutable snapshot of every RepositoryObject in one loaded
// fixture, indexed for the lookups store.Storage needs.
type Store struct {
	byURL     map[string]store.RepositoryObject
	crlsBySKI map[string][]store.RepositoryObject
	mftsBySKI map[string][]store.RepositoryObject
}

// Load parses data (the fixture's top-level "objects" array) into a
// Store.
func Load(data []byte) (*Store, error) {
	s := &Store{
		byURL:     make(map[string]store.RepositoryObject),
		crlsBySKI: make(map[string][]store.RepositoryObject),
		mftsBySKI: make(map[string][]store.RepositoryObject),
	}

	var parseErr error
	_, err := jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if parseErr != nil || err != nil {
			if err != nil {
				parseErr = err
			}
			return
		}
		obj, ski, perr := parseObject(value)
		if perr != nil {
			parseErr = perr
			return
		}

		s.byURL[obj.URL] = obj
		switch obj.Object.Kind {
		case store.KindCRL:
			s.crlsBySKI[string(ski)] = append(s.crlsBySKI[string(ski)], obj)
		case store.KindManifest:
			s.mftsBySKI[string(ski)] = append(s.mftsBySKI[string(ski)], obj)
		}
	}, "objects")
	if err != nil {
		return nil, fmt.Errorf("fixturestore: objects array: %w", err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("fixturestore: parse object: %w", parseErr)
	}
	return s, nil
}

// parseObject decodes one fixture object entry, returning the decoded
// RepositoryObject and the issuing CA's SKI it is filed under (for CRLs
// and manifests, the "issuer_ski" field; otherwise empty).
func parseObject(value []byte) (store.RepositoryObject, []byte, error) {
	var obj store.RepositoryObject

	url, err := jsonparser.GetString(value, "url")
	if err != nil {
		return obj, nil, fmt.Errorf("missing url: %w", err)
	}
	obj.URL = url

	kindStr, _ := jsonparser.GetString(value, "kind")
	obj.Object.Kind = parseKind(kindStr)

	if h, err := jsonparser.GetString(value, "hash"); err == nil {
		obj.Hash = decodeHash(h)
	}

	obj.Object.IsCA, _ = jsonparser.GetBoolean(value, "is_ca")
	obj.Object.SubjectKeyIdentifier = decodeHexField(value, "ski")
	obj.Object.AuthorityKeyID = decodeHexField(value, "aki")
	obj.Object.RepositoryURI, _ = jsonparser.GetString(value, "repository_uri")
	obj.Object.RPKINotifyURI, _ = jsonparser.GetString(value, "rpki_notify_uri")
	obj.Object.ManifestURI, _ = jsonparser.GetString(value, "manifest_uri")

	if n, err := jsonparser.GetInt(value, "crl_number"); err == nil {
		obj.Object.CRLNumber = n
	}
	if n, err := jsonparser.GetInt(value, "manifest_number"); err == nil {
		obj.Object.ManifestNumber = n
	}

	entries := make(map[string]store.Hash)
	var order []string
	jsonparser.ObjectEach(value, func(key []byte, val []byte, dataType jsonparser.ValueType, offset int) error {
		name := string(key)
		order = append(order, name)
		entries[name] = decodeHash(string(val))
		return nil
	}, "entries")
	if len(entries) > 0 {
		obj.Object.Entries = entries
		obj.Object.EntryOrder = order
	}

	var vrps []store.VRP
	jsonparser.ArrayEach(value, func(v []byte, dataType jsonparser.ValueType, offset int, err error) {
		prefix, _ := jsonparser.GetString(v, "prefix")
		maxLen, _ := jsonparser.GetInt(v, "max_len")
		asn, _ := jsonparser.GetInt(v, "asn")
		vrps = append(vrps, store.VRP{Prefix: prefix, MaxLen: uint8(maxLen), ASN: uint32(asn)})
	}, "vrps")
	obj.Object.VRPs = vrps

	issuerSKI := decodeHexField(value, "issuer_ski")
	return obj, issuerSKI, nil
}

func parseKind(s string) store.ObjectKind {
	switch s {
	case "crl":
		return store.KindCRL
	case "manifest":
		return store.KindManifest
	case "roa":
		return store.KindROA
	default:
		return store.KindResourceCertificate
	}
}

func decodeHash(hexStr string) store.Hash {
	var h store.Hash
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return h
	}
	copy(h[:], raw)
	return h
}

func decodeHexField(value []byte, key string) []byte {
	s, err := jsonparser.GetString(value, key)
	if err != nil || s == "" {
		return nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return raw
}

// GetCRLs implements store.Storage.
func (s *Store) GetCRLs(ski []byte) []store.RepositoryObject { return s.crlsBySKI[string(ski)] }

// GetManifests implements store.Storage.
func (s *Store) GetManifests(ski []byte) []store.RepositoryObject { return s.mftsBySKI[string(ski)] }

// GetObject implements store.Storage.
func (s *Store) GetObject(uri string) (store.RepositoryObject, bool) {
	o, ok := s.byURL[uri]
	return o, ok
}

// NoopFetcher is a store.RepoFetcher that does nothing: a fixture is
// already fully loaded, so the walker's prefetch calls are satisfied
// trivially.
type NoopFetcher struct{}

func (NoopFetcher) FetchRepo(ctx context.Context, uri string) error                 { return nil }
func (NoopFetcher) FetchTrustAnchorCertificate(ctx context.Context, uri string) error { return nil }
