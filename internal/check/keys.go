package check

// Key is a validation-string identifier, not a human message; formatting
// is a UI concern left to callers. The catalogue below mirrors the
// upstream validation-string constants a real crypto validator would
// surface. Keys are modeled as the open Key("...") string type rather
// than a closed enum, so a translator (see translate.go) can pass unknown
// keys through unchanged.
type Key string

const (
	CRLRequired                Key = "CRL_REQUIRED"
	CAShouldHaveManifest       Key = "VALIDATOR_CA_SHOULD_HAVE_MANIFEST"
	ManifestLocationMismatch   Key = "VALIDATOR_MANIFEST_LOCATION_MISMATCH"
	ManifestFileNotFoundByAKI  Key = "VALIDATOR_MANIFEST_FILE_NOT_FOUND_BY_AKI"
	ManifestDoesNotContainFile Key = "VALIDATOR_MANIFEST_DOES_NOT_CONTAIN_FILE"
	ManifestCRLURIMismatch     Key = "VALIDATOR_MANIFEST_CRL_URI_MISMATCH"
	ManifestHashMismatch       Key = "VALIDATOR_MANIFEST_HASH_MISMATCH"
)
