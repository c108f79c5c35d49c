package pathsandbox

// Resolver holds one canonical base directory so callers resolving many
// paths against the same tree only canonicalize the base once.
type Resolver struct {
	base string
}

// NewResolver canonicalizes baseDir. The directory must exist.
func NewResolver(baseDir string) (*Resolver, error) {
	base, err := CanonicalBase(baseDir)
	if err != nil {
		return nil, err
	}
	return &Resolver{base: base}, nil
}

// Base returns the canonical base directory.
func (r *Resolver) Base() string {
	return r.base
}

// Resolve returns the canonical form of candidate if it stays inside the base.
func (r *Resolver) Resolve(candidate string) (string, error) {
	resolved, err := Canonicalize(r.base, candidate)
	if err != nil {
		return "", err
	}
	if !Within(resolved, r.base) {
		return "", &EscapeError{Candidate: candidate, Resolved: resolved, Base: r.base}
	}
	return resolved, nil
}
