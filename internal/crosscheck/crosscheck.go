// Package crosscheck implements the manifest cross-checker: resolves a
// manifest's declared entries against the store and classifies
// them into ROAs, child certificates, and CRLs, cross-checking the CRL
// and manifest locations along the way.
package crosscheck

import (
	"strings"

	"github.com/yaoyj11/rpki-validator/internal/check"
	"github.com/yaoyj11/rpki-validator/internal/store"
)

// Result is the output of Run: the classified objects plus every
// manifest-level check produced along the way.
type Result struct {
	Objects store.ClassifiedObjects
	Checks  check.List
}

// Run cross-checks manifest against selectedCRL under issuer, resolving
// entries via st.
func Run(st store.Storage, manifest store.RepositoryObject, selectedCRL store.RepositoryObject, issuer store.CertificateContext) Result {
	var res Result
	skiHex := issuer.SKIHex()

	var crlsOnManifest []store.RepositoryObject

	for _, name := range manifest.Object.EntryOrder {
		declaredHash := manifest.Object.Entries[name]
		uri := resolveURI(issuer.RepositoryURI, name)

		obj, found := st.GetObject(uri)
		if !found {
			res.Checks = append(res.Checks, check.NewWarning(
				issuer.Location, check.ManifestFileNotFoundByAKI, uri, skiHex))
			continue
		}

		if obj.Hash != declaredHash {
			// reuses ManifestLocationMismatch here rather than a
			// hash-specific key; preserved verbatim for test compatibility.
			res.Checks = append(res.Checks, check.NewWarning(
				issuer.Location, check.ManifestLocationMismatch, uri, skiHex))
			continue
		}

		switch obj.Object.Kind {
		case store.KindROA:
			res.Objects.ROAs = append(res.Objects.ROAs, obj)
		case store.KindResourceCertificate:
			res.Objects.ChildCertificates = append(res.Objects.ChildCertificates, obj)
		case store.KindCRL:
			crlsOnManifest = append(crlsOnManifest, obj)
		default:
			// unknown kinds are silently dropped.
		}
	}

	res.Objects.CRLs = crlsOnManifest
	res.Checks = append(res.Checks, crossCheckCRL(crlsOnManifest, selectedCRL, issuer.Location)...)
	res.Checks = append(res.Checks, crossCheckManifestURL(manifest, issuer)...)

	return res
}

func crossCheckCRL(onManifest []store.RepositoryObject, selected store.RepositoryObject, loc check.Location) check.List {
	switch len(onManifest) {
	case 0:
		return check.List{check.NewWarning(loc, check.ManifestDoesNotContainFile, "*.obj")}
	case 1:
		found := onManifest[0]
		if found.URL != selected.URL {
			return check.List{check.NewWarning(loc, check.ManifestCRLURIMismatch)}
		}
		if found.Hash != selected.Hash {
			return check.List{check.NewWarning(loc, check.ManifestHashMismatch)}
		}
		return nil
	default:
		urls := make([]string, len(onManifest))
		for i, o := range onManifest {
			urls[i] = o.URL
		}
		msg := "Single CRL expected, found: " + strings.Join(urls, ", ")
		return check.List{check.NewWarning(loc, check.ManifestDoesNotContainFile, msg)}
	}
}

func crossCheckManifestURL(manifest store.RepositoryObject, issuer store.CertificateContext) check.List {
	if !strings.EqualFold(issuer.ManifestURI, manifest.URL) {
		return check.List{check.NewWarning(issuer.Location, check.ManifestLocationMismatch)}
	}
	return nil
}

// resolveURI joins a CA repository publication point with a manifest
// filename: manifest filenames are resolved relative to the issuing
// certificate's repositoryURI.
func resolveURI(repositoryURI, filename string) string {
	if strings.HasSuffix(repositoryURI, "/") {
		return repositoryURI + filename
	}
	return repositoryURI + "/" + filename
}
