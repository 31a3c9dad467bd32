package loader

import "go.uber.org/zap"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithModelFile is an option builder that pre-populates the file cache.
//
// Parameters:
//   - key: the cache key for the file
//   - file: the file to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the file option to a loader
func WithModelFile(key string, file *ModelFile) LoaderBuilderOption {
	return func(l *loader) {
		l.modelCache[key] = file
	}
}

// WithLogger is an option builder that sets the logger used for load and build messages.
// Defaults to a no-op logger.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *zap.SugaredLogger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}
