package profile

import "fmt"

// Hook names used in ConfigurationError.
const (
	HookDropFilter   = "drop filter"
	HookAccept       = "accept predicate"
	HookBulk         = "bulk decider"
	HookExpand       = "expand directory decider"
	HookDependencies = "dependencies"
	HookPreparator   = "preparator"
)

// ConfigurationError is a failure of processor-supplied code or
// configuration. The pipeline drops the smallest affected unit and reports it.
type ConfigurationError struct {
	Hook      string
	Processor string
	Err       error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("processor %s: %s: %v", e.Processor, e.Hook, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
