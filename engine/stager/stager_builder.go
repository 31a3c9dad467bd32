package stager

import "go.uber.org/zap"

// StagerBuilderOption is a functional option for configuring a Stager via NewStager.
type StagerBuilderOption func(*stager)

// WithCapacity sets the destination node buffer capacity in bytes. Stage fails with a
// *CapacityError when the records would not fit. Zero disables the check.
//
// Parameters:
//   - bytes: node buffer capacity
//
// Returns:
//   - StagerBuilderOption: a function that applies the capacity option to a stager
func WithCapacity(bytes uint64) StagerBuilderOption {
	return func(s *stager) {
		s.capacity = bytes
	}
}

// WithPresenceMode sets how branch presence masks are written.
//
// Parameters:
//   - mode: PresenceSparse or PresenceFull
//
// Returns:
//   - StagerBuilderOption: a function that applies the presence option to a stager
func WithPresenceMode(mode PresenceMode) StagerBuilderOption {
	return func(s *stager) {
		s.presence = mode
	}
}

// WithLeafColorIndex sets the palette index written into every leaf record.
//
// Parameters:
//   - index: palette index
//
// Returns:
//   - StagerBuilderOption: a function that applies the color option to a stager
func WithLeafColorIndex(index uint32) StagerBuilderOption {
	return func(s *stager) {
		s.leafColor = index
	}
}

// WithLogger sets the logger used for staging messages. Defaults to a no-op logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - StagerBuilderOption: a function that applies the logger option to a stager
func WithLogger(logger *zap.SugaredLogger) StagerBuilderOption {
	return func(s *stager) {
		if logger != nil {
			s.logger = logger
		}
	}
}
