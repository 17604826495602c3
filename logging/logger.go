package logging

import "go.uber.org/zap"

// New returns the global sugared logger scoped to a component name. It must be called
// after config.New has installed the global logger.
func New(component string) *zap.SugaredLogger {
	return zap.S().Named(component)
}
