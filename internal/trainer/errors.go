package trainer

import "errors"

var (
	// ErrConfiguration reports a trainer that cannot be constructed as
	// requested.
	ErrConfiguration = errors.New("trainer: configuration error")
	// ErrGradientComputation reports a gradient penalty whose input
	// gradient could not be computed.
	ErrGradientComputation = errors.New("trainer: gradient computation failed")
)
