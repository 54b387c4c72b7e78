package archive

import "errors"

var (
	ErrCorruptArchive    = errors.New("edgezip: corrupt archive")
	ErrSpecifierNotFound = errors.New("edgezip: specifier not found")
	ErrInvalidModule     = errors.New("edgezip: invalid module record")
	ErrNothingToBuild    = errors.New("edgezip: no root modules")
	ErrIncompleteGraph   = errors.New("edgezip: unresolved module references")
)
