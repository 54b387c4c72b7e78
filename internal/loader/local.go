package loader

import "fmt"

// Local serves modules from a caller-supplied file set keyed by specifier.
type Local struct {
	files map[string]File
}

// NewLocal creates a Local over files. The map is not copied; callers must not
// mutate it while a build is running.
func NewLocal(files map[string]File) *Local {
	if files == nil {
		files = map[string]File{}
	}
	return &Local{files: files}
}

// Load looks up spec by exact string match.
func (l *Local) Load(spec string) (*Module, error) {
	f, ok := l.files[spec]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, spec)
	}
	return &Module{
		Specifier: spec,
		Headers:   []Header{{Key: HeaderContentType, Value: f.MediaType}},
		Content:   f.Content,
		SourceMap: f.SourceMap,
	}, nil
}

// Len returns the number of files in the set.
func (l *Local) Len() int {
	return len(l.files)
}
