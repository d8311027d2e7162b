// Package store defines the data model — RepositoryObject,
// CertificateContext, ValidatedObject, ClassifiedObjects — and the
// external-contract interfaces (Storage, RepoFetcher) this repository is
// built around. Nothing in this package performs cryptographic
// validation: that is an external collaborator this package only
// describes by interface.
package store

import (
	"context"

	"github.com/yaoyj11/rpki-validator/internal/check"
)

// ObjectKind tags the decoded payload carried by a RepositoryObject.
type ObjectKind int

const (
	KindResourceCertificate ObjectKind = iota
	KindCRL
	KindManifest
	KindROA
)

func (k ObjectKind) String() string {
	switch k {
	case KindResourceCertificate:
		return "certificate"
	case KindCRL:
		return "crl"
	case KindManifest:
		return "manifest"
	case KindROA:
		return "roa"
	default:
		return "unknown"
	}
}

// Hash is a fixed-width content hash (SHA-256 in practice).
type Hash [32]byte

// Object is the decoded payload of a RepositoryObject. Only the fields
// the core walker needs are modeled; everything else (raw DER, full
// certificate chain material) is opaque to this package and lives behind
// the external crypto validator's own types.
type Object struct {
	Kind ObjectKind

	// Certificate fields (KindResourceCertificate)
	IsCA                 bool
	SubjectKeyIdentifier []byte // SKI, fixed-length
	AuthorityKeyID       []byte // AKI of the issuer, fixed-length
	RepositoryURI        string // CA repository publication point
	RPKINotifyURI        string // RRDP notification URI, may be empty
	ManifestURI          string // declared manifest location

	// CRL fields (KindCRL)
	CRLNumber int64

	// Manifest fields (KindManifest)
	ManifestNumber int64
	// Entries maps a filename (relative to the issuer's RepositoryURI)
	// to its manifest-declared hash. Insertion-ordered: iterate via
	// EntryOrder, not by ranging the map, so checks are reported in a
	// stable order within a single run ( re-architecture
	// guidance).
	Entries    map[string]Hash
	EntryOrder []string

	// ROA fields (KindROA) - Validated ROA Payloads.
	VRPs []VRP
}

// VRP is a Validated ROA Payload: the (prefix, maxLen, asn) triple
// extracted from a validated ROA.
type VRP struct {
	Prefix string // CIDR text form
	MaxLen uint8
	ASN    uint32
}

// RepositoryObject pairs a URI with its decoded Object and content hash.
// Equality is by URL+hash.
type RepositoryObject struct {
	URL    string
	Object Object
	Hash   Hash
}

// Equal reports url+hash equality.
func (o RepositoryObject) Equal(other RepositoryObject) bool {
	return o.URL == other.URL && o.Hash == other.Hash
}

// CertificateContext is the issuer view used when validating a child.
type CertificateContext struct {
	Location             check.Location
	Certificate          RepositoryObject
	SubjectKeyIdentifier []byte // fixed-length
	RepositoryURI        string
	RPKINotifyURI        string // may be empty
	ManifestURI          string
}

// SKIHex returns the canonical uppercase-hex text form of the SKI, used
// as a log tag and cycle key.
func (c CertificateContext) SKIHex() string {
	return skiHex(c.SubjectKeyIdentifier)
}

func skiHex(ski []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, len(ski)*2)
	for i, b := range ski {
		out[i*2] = digits[b>>4]
		out[i*2+1] = digits[b&0x0f]
	}
	return string(out)
}

// ValidatedObject is the verdict attached to a terminal leaf URI:
// Object is only populated if the object validated.
type ValidatedObject struct {
	Checks check.List
	Object *RepositoryObject
}

// ClassifiedObjects is produced by the manifest cross-checker (C5) from a
// manifest's entries.
type ClassifiedObjects struct {
	ROAs              []RepositoryObject
	ChildCertificates []RepositoryObject
	CRLs              []RepositoryObject
}

// Storage is the inbound boundary to the on-disk object store.
// Implementations must return immutable snapshots: reads must be
// consistent even while a separate ingest pass writes concurrently.
type Storage interface {
	GetCRLs(ski []byte) []RepositoryObject
	GetManifests(ski []byte) []RepositoryObject
	GetObject(uri string) (RepositoryObject, bool)
}

// RepoFetcher is the inbound boundary to the rsync/RRDP transport,
// out of scope here and referenced only by contract.
type RepoFetcher interface {
	FetchRepo(ctx context.Context, uri string) error
	FetchTrustAnchorCertificate(ctx context.Context, uri string) error
}
