// Package walker implements the top-down certificate-tree validation
// walker: given a trust-anchor CertificateContext, it traverses
// the RPKI tree, selecting manifests and CRLs, cross-checking manifest
// contents against the store, validating every child object, and
// producing a map from object URI to validation verdict.
package walker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/crosscheck"
	"github.com/yaoyj11/rpki-validator/internal/fetch"
	"github.com/yaoyj11/rpki-validator/internal/selector"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

// Result is what a walk returns: the accumulated validated-object map
// plus every Check produced in the subtree.
type Result struct {
	Objects map[string]store.ValidatedObject
	Checks  check.List
}

func newResult() Result {
	return Result{Objects: make(map[string]store.ValidatedObject)}
}

func (r *Result) merge(other Result) {
	for k, v := range other.Objects {
		r.Objects[k] = v
	}
	r.Checks = append(r.Checks, other.Checks...)
}

// Seen is the per-run cycle guard: within a single walker invocation,
// no SKI hex string is walked twice. It is owned by one walker chain
// and must never be shared across trust anchors.
type Seen struct {
	skis map[string]bool
}

// NewSeen builds an empty cycle guard for one root walk.
func NewSeen() *Seen {
	return &Seen{skis: make(map[string]bool)}
}

// add registers skiHex as visited. It returns false if skiHex was
// already present (a cycle, or a programmer error at entry).
func (s *Seen) add(skiHex string) bool {
	if s.skis[skiHex] {
		return false
	}
	s.skis[skiHex] = true
	return true
}

// Len reports how many distinct SKIs have been walked so far.
func (s *Seen) Len() int { return len(s.skis) }

// Walker validates one subtree rooted at a CertificateContext. Build one
// per recursion step with New; the constructor enforces its
// preconditions.
type Walker struct {
	issuer    store.CertificateContext
	st        store.Storage
	fetchSvc  *fetch.Service
	validator store.CryptoValidator
	opts      store.ValidationOptions
	seen      *Seen
	log       zerolog.Logger

	validationStartTime time.Time
}

// New builds a Walker for issuer, enforcing two preconditions: issuer
// must be an object-issuing CA certificate, and its SKI must not already
// be in seen. Both are programmer errors, not RPKI data errors, and
// panic rather than return an error.
func New(
	issuer store.CertificateContext,
	st store.Storage,
	fetchSvc *fetch.Service,
	validator store.CryptoValidator,
	opts store.ValidationOptions,
	seen *Seen,
	validationStartTime time.Time,
	log zerolog.Logger,
) *Walker {
	if !issuer.Certificate.Object.IsCA {
		panic(fmt.Sprintf("walker: %s is not an object-issuing CA certificate", issuer.Location))
	}
	if !seen.add(issuer.SKIHex()) {
		panic(fmt.Sprintf("walker: SKI %s already walked (cycle at entry)", issuer.SKIHex()))
	}

	return &Walker{
		issuer:              issuer,
		st:                  st,
		fetchSvc:            fetchSvc,
		validator:           validator,
		opts:                opts,
		seen:                seen,
		log:                 log.With().Str("ski", issuer.SKIHex()).Logger(),
		validationStartTime: validationStartTime,
	}
}

// Walk runs the per-invocation validation procedure and returns the
// accumulated result for this subtree.
func (w *Walker) Walk(ctx context.Context) Result {
	res := newResult()

	// 1. prefetch the issuer's publication point.
	prefetchURI := w.issuer.RPKINotifyURI
	if prefetchURI == "" {
		prefetchURI = w.issuer.RepositoryURI
	}
	if err := w.fetchSvc.VisitRepo(ctx, prefetchURI, false, w.validationStartTime); err != nil {
		w.log.Warn().Err(err).Str("uri", prefetchURI).Msg("prefetch failed, continuing with store's current contents")
	}

	// 2. pick the current CRL.
	crlCandidates := w.st.GetCRLs(w.issuer.SubjectKeyIdentifier)
	crlSel := selector.Select(crlCandidates, selector.CRLNumber, w.issuer, nil, w.validator, w.opts)
	res.Checks = append(res.Checks, crlSel.Checks...)
	if crlSel.Chosen == nil {
		res.Checks = append(res.Checks, check.NewReject(w.issuer.Location, check.CRLRequired))
		return res
	}
	crlLocator := store.StaticCRL{Current: *crlSel.Chosen}

	// 3. pick the current manifest.
	mftCandidates := w.st.GetManifests(w.issuer.SubjectKeyIdentifier)
	mftSel := selector.Select(mftCandidates, selector.ManifestNumber, w.issuer, crlLocator, w.validator, w.opts)
	res.Checks = append(res.Checks, mftSel.Checks...)
	if mftSel.Chosen == nil {
		res.Checks = append(res.Checks, check.NewWarning(w.issuer.Location, check.CAShouldHaveManifest))
		return res
	}

	// 4. cross-check the manifest against the store.
	xc := crosscheck.Run(w.st, *mftSel.Chosen, *crlSel.Chosen, w.issuer)
	res.Checks = append(res.Checks, xc.Checks...)

	// 5. validate every CRL candidate, manifest candidate, ROA, and
	// child certificate. (CRL/manifest candidates were already validated
	// by selector.Select above; here we validate the ROAs, and child
	// certificates are validated in step 6 before any recursion.)
	for _, roa := range xc.Objects.ROAs {
		res.Objects[roa.URL] = w.validateLeaf(roa, crlLocator)
	}

	// 6. recurse into every child CA certificate, guarding against
	// cycles.
	for _, child := range xc.Objects.ChildCertificates {
		childCtx, ok := w.childContext(child)
		if !ok {
			// not an object-issuing CA; treat as a terminal leaf.
			res.Objects[child.URL] = w.validateLeaf(child, crlLocator)
			continue
		}

		// validate the child CA certificate itself; a failure suppresses
		// descent into its subtree.
		sink := &store.CollectingSink{}
		w.validator.Validate(child.URL, w.issuer, crlLocator, w.opts, sink)
		res.Checks = append(res.Checks, sink.Checks()...)
		if sink.Failed() {
			continue
		}

		skiHex := childCtx.SKIHex()
		if w.seen.skis[skiHex] {
			w.log.Warn().Str("child_ski", skiHex).Str("uri", child.URL).Msg("cycle detected, skipping")
			continue
		}

		childWalker := New(childCtx, w.st, w.fetchSvc, w.validator, w.opts, w.seen, w.validationStartTime, w.log)
		childRes := childWalker.Walk(ctx)
		res.merge(childRes)
	}

	return res
}

// validateLeaf runs the crypto validator against a terminal object (ROA
// or non-CA end-entity certificate) and turns its result into a
// ValidatedObject.
func (w *Walker) validateLeaf(obj store.RepositoryObject, crl store.CRLLocator) store.ValidatedObject {
	sink := &store.CollectingSink{}
	w.validator.Validate(obj.URL, w.issuer, crl, w.opts, sink)
	checks := sink.Checks()

	vo := store.ValidatedObject{Checks: checks}
	if !sink.Failed() {
		o := obj
		vo.Object = &o
	}
	return vo
}

// childContext builds the CertificateContext a recursive Walker needs for
// child, if child is itself an object-issuing CA certificate.
func (w *Walker) childContext(child store.RepositoryObject) (store.CertificateContext, bool) {
	if !child.Object.IsCA {
		return store.CertificateContext{}, false
	}
	return store.CertificateContext{
		Location:             check.Location(child.URL),
		Certificate:          child,
		SubjectKeyIdentifier: child.Object.SubjectKeyIdentifier,
		RepositoryURI:        child.Object.RepositoryURI,
		RPKINotifyURI:        child.Object.RPKINotifyURI,
		ManifestURI:          child.Object.ManifestURI,
	}, true
}
