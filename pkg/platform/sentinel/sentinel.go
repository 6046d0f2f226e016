package sentinel

import "errors"

// Facts reported by stores and infrastructure adapters. Services translate
// them into domain error codes; stores never return domain codes themselves.
//
//   - ErrNotFound: the entity does not exist.
//   - ErrStateChanged: a conditional write matched zero rows because the
//     precondition no longer held at commit time.
//   - ErrDuplicate: a uniqueness constraint rejected the write.
//   - ErrUnavailable: a dependency could not be reached.
var (
	ErrNotFound     = errors.New("not found")
	ErrStateChanged = errors.New("state changed")
	ErrDuplicate    = errors.New("duplicate")
	ErrUnavailable  = errors.New("unavailable")
)
