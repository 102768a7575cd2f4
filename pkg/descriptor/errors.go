package descriptor

import (
	"errors"
	"fmt"
)

var (
	// ErrVersionMismatch is returned when a module requires a host version this host does not satisfy
	ErrVersionMismatch = errors.New("version_mismatch")

	// ErrModuleNotFound is returned when a module cannot be found on disk or in the registry
	ErrModuleNotFound = errors.New("module_not_found")

	// ErrModuleAlreadyLoaded is returned when adding a module whose name is already registered
	ErrModuleAlreadyLoaded = errors.New("module_already_loaded")

	// ErrMissingDependency is returned when a module declares a dependency that cannot be found
	ErrMissingDependency = errors.New("missing_dependency")

	// ErrTypeAlreadyRegistered is returned when a type name is bound to another enabled unit
	ErrTypeAlreadyRegistered = errors.New("type_already_registered")

	// ErrTypeInUse is returned when a live flow references a type being disabled or removed
	ErrTypeInUse = errors.New("type_in_use")

	// ErrUnitNotFound is returned for an unknown unit id
	ErrUnitNotFound = errors.New("unit_not_found")

	// ErrModuleInUse is returned when removing a module other modules depend on
	ErrModuleInUse = errors.New("module_in_use")

	// ErrModuleNotRemovable is returned when removing the host's own module
	ErrModuleNotRemovable = errors.New("module_not_removable")

	// ErrInvalidManifest is returned for a manifest that does not parse or validate
	ErrInvalidManifest = errors.New("invalid_manifest")

	// ErrLoadFailed wraps an error raised by a unit implementation
	ErrLoadFailed = errors.New("load_failed")
)

// codes is ordered so that compound errors report their most specific code
var codes = []error{
	ErrMissingDependency,
	ErrVersionMismatch,
	ErrModuleNotFound,
	ErrModuleAlreadyLoaded,
	ErrTypeAlreadyRegistered,
	ErrTypeInUse,
	ErrUnitNotFound,
	ErrModuleInUse,
	ErrModuleNotRemovable,
	ErrInvalidManifest,
	ErrLoadFailed,
}

// Code returns the wire code for an error in the taxonomy, or "unknown"
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c) {
			return c.Error()
		}
	}
	return "unknown"
}

// NewUnitError builds a unit diagnostic from an error
func NewUnitError(err error, line int) *UnitError {
	return &UnitError{
		Code:    Code(err),
		Message: err.Error(),
		Line:    line,
	}
}

// MissingDependencyError reports the module a dependency lookup failed for
func MissingDependencyError(module, dependency string) error {
	return fmt.Errorf("%w: %s requires %s: %w", ErrMissingDependency, module, dependency, ErrModuleNotFound)
}
