package store

import "github.com/yaoyj11/rpki-validator/internal/check"

// CRLLocator resolves the CRL an object should be checked against for
// revocation. The top-down walker supplies the CA's chosen "current"
// CRL once one is selected; while it validates the CRL candidates
// themselves it passes a nil CRLLocator.
type CRLLocator interface {
	CRL() RepositoryObject
}

// StaticCRL is a CRLLocator that always resolves to one fixed CRL.
type StaticCRL struct {
	Current RepositoryObject
}

func (s StaticCRL) CRL() RepositoryObject { return s.Current }

// ValidationOptions carries tunables the external crypto validator needs
// but this package has no opinion on (e.g. whether to allow a grace
// period on CRL nextUpdate). It is intentionally opaque here.
type ValidationOptions map[string]any

// CryptoValidator is the external cryptographic boundary: it performs
// X.509/CRL/manifest/ROA signature and resource-extent validation. This
// package never implements it; callers inject a real implementation
// (e.g. backed by crypto/x509 plus an RPKI resource-extent checker).
type CryptoValidator interface {
	// Validate checks the object at url against issuer, using crl for
	// revocation, and reports every finding into sink keyed by url.
	Validate(url string, issuer CertificateContext, crl CRLLocator, opts ValidationOptions, sink ResultSink)
}

// ResultSink receives one check.Result per validated location. The top-
// down walker and the manifest/CRL selector both drive a CryptoValidator
// through this sink and translate its output via check.Translate.
type ResultSink interface {
	Report(check.Result)
}

// CollectingSink is a ResultSink that accumulates every reported Result,
// for callers (the selector, the walker) that need to inspect or
// translate results after a Validate call returns.
type CollectingSink struct {
	Results []check.Result
}

func (s *CollectingSink) Report(r check.Result) {
	s.Results = append(s.Results, r)
}

// Checks translates every collected Result into Checks, in report order.
func (s *CollectingSink) Checks() check.List {
	var out check.List
	for _, r := range s.Results {
		out = append(out, check.Translate(r)...)
	}
	return out
}

// Failed reports whether any collected Result carried a Reject-producing
// failure.
func (s *CollectingSink) Failed() bool {
	for _, r := range s.Results {
		if len(r.Failures) > 0 {
			return true
		}
	}
	return false
}
