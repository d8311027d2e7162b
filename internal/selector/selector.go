// Package selector implements the manifest/CRL selector: given the
// candidates issued by a CA, pick the "most recent valid" one.
package selector

import (
	"sort"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

// Result is the outcome of selecting among a CA's CRL or manifest
// candidates: the chosen object (nil if none passed), plus the checks
// produced validating every candidate — not just the chosen one, so
// operators see every bad CRL/manifest.
type Result struct {
	Chosen *store.RepositoryObject
	Checks check.List
}

// NumberOf extracts the ordering number (CRL number or manifest number)
// from a candidate object.
type NumberOf func(store.Object) int64

func CRLNumber(o store.Object) int64      { return o.CRLNumber }
func ManifestNumber(o store.Object) int64 { return o.ManifestNumber }

// Select sorts candidates by numberOf descending (ties keep their
// original, store-insertion order — sort.SliceStable) and returns the
// first one that passes validator.Validate against issuer (and, for
// manifests, crl) without failures. Every candidate is validated and its
// checks collected, regardless of whether it is chosen.
func Select(
	candidates []store.RepositoryObject,
	numberOf NumberOf,
	issuer store.CertificateContext,
	crl store.CRLLocator,
	validator store.CryptoValidator,
	opts store.ValidationOptions,
) Result {
	ranked := make([]store.RepositoryObject, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return numberOf(ranked[i].Object) > numberOf(ranked[j].Object)
	})

	var (
		res    Result
		picked bool
	)
	for _, cand := range ranked {
		sink := &store.CollectingSink{}
		validator.Validate(cand.URL, issuer, crl, opts, sink)
		res.Checks = append(res.Checks, sink.Checks()...)

		if !picked && !sink.Failed() {
			c := cand
			res.Chosen = &c
			picked = true
		}
	}
	return res
}
