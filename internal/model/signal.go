package model

// SignalKind discriminates the closed set of inbound signal variants.
type SignalKind string

const (
	SignalRuntimeFault   SignalKind = "runtime-fault"
	SignalAsyncRejection SignalKind = "async-rejection"
	SignalContentFault   SignalKind = "content-fault"
	SignalTrapActivation SignalKind = "trap-activation"
)

// Signal is a raw candidate observation submitted by a signal source.
// It is a tagged variant: exactly the fields for its SignalKind are set.
type Signal struct {
	Kind SignalKind `json:"kind"`

	// runtime-fault
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`

	// async-rejection
	Reason string `json:"reason,omitempty"`

	// content-fault
	ContentKey string `json:"key,omitempty"`
	Lang       string `json:"lang,omitempty"`

	// trap-activation
	TargetID string            `json:"target_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Optional severity/kind override carried by the source.
	SeverityHint string `json:"severity,omitempty"`
	Component    string `json:"component,omitempty"`
}

// RuntimeFault builds a generic runtime fault signal.
func RuntimeFault(message, stack string) Signal {
	return Signal{Kind: SignalRuntimeFault, Message: message, Stack: stack}
}

// AsyncRejection builds an unhandled asynchronous rejection signal.
func AsyncRejection(reason string) Signal {
	return Signal{Kind: SignalAsyncRejection, Reason: reason}
}

// ContentFault builds a missing/incorrect localization signal.
func ContentFault(key, lang string) Signal {
	return Signal{Kind: SignalContentFault, ContentKey: key, Lang: lang}
}

// TrapActivation builds a honeytoken activation signal.
func TrapActivation(targetID string, metadata map[string]string) Signal {
	return Signal{Kind: SignalTrapActivation, TargetID: targetID, Metadata: metadata}
}
