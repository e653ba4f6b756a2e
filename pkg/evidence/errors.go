package evidence

import "errors"

// ErrInvalidDocument is returned for YAML documents that are not a mapping of scalars.
var ErrInvalidDocument = errors.New("evidence: document is not a key/value mapping")
