// Package protocol defines the wire contract shared by the sandbox agent and
// the host bridge: the control block layout, signal values, the message
// command enum and interaction payloads.
package protocol

// Signal is a value stored in the MAIN or AUX slot of the control block.
type Signal int32

const (
	// SignalNoOp means no pending command.
	SignalNoOp Signal = iota
	// SignalWait parks the sandbox on MAIN.
	SignalWait
	// SignalProceed releases the sandbox.
	SignalProceed
	// SignalStop asks the sandbox to halt.
	SignalStop
	// SignalUserInteractionResponse means the message region holds a response.
	SignalUserInteractionResponse
)

// String returns the string representation of the signal.
func (s Signal) String() string {
	switch s {
	case SignalNoOp:
		return "noop"
	case SignalWait:
		return "wait"
	case SignalProceed:
		return "proceed"
	case SignalStop:
		return "stop"
	case SignalUserInteractionResponse:
		return "user-interaction-response"
	default:
		return "unknown"
	}
}

// InteractionKind identifies a blocking user interaction requested by a snippet.
type InteractionKind int32

const (
	InteractionAlert InteractionKind = iota
	InteractionConfirm
	InteractionPrompt
)

// String returns the string representation of the interaction kind.
func (k InteractionKind) String() string {
	switch k {
	case InteractionAlert:
		return "alert"
	case InteractionConfirm:
		return "confirm"
	case InteractionPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Command identifies a message exchanged between bridge and sandbox.
type Command int

// Commands in wire order.
const (
	CmdSharedMem Command = iota
	CmdSetSourceCode
	CmdExecute
	CmdExecutionFinished
	CmdUserInteractionRequest
	CmdSetVar
	CmdMarkcl
	CmdForceMarkcl
	CmdStartScope
	CmdEndScope
	CmdPushParams
	CmdPopParams
	CmdOnAddNode
	CmdOnAddEdge
	CmdOnRemoveEdge
	CmdOnRemoveNode
	CmdOnAccessNode
	CmdOnExceptionRaised
	CmdOnConsoleLog
)

var commandNames = [...]string{
	CmdSharedMem:              "sharedMem",
	CmdSetSourceCode:          "setSourceCode",
	CmdExecute:                "execute",
	CmdExecutionFinished:      "executionFinished",
	CmdUserInteractionRequest: "userInteractionRequest",
	CmdSetVar:                 "setVar",
	CmdMarkcl:                 "markcl",
	CmdForceMarkcl:            "forcemarkcl",
	CmdStartScope:             "startScope",
	CmdEndScope:               "endScope",
	CmdPushParams:             "pushParams",
	CmdPopParams:              "popParams",
	CmdOnAddNode:              "onAddNode",
	CmdOnAddEdge:              "onAddEdge",
	CmdOnRemoveEdge:           "onRemoveEdge",
	CmdOnRemoveNode:           "onRemoveNode",
	CmdOnAccessNode:           "onAccessNode",
	CmdOnExceptionRaised:      "onExceptionRaised",
	CmdOnConsoleLog:           "onConsoleLog",
}

// String returns the wire name of the command.
func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return "unknown"
	}
	return commandNames[c]
}

// IsRequest reports whether the command is a host request answered through a
// one-shot reply channel.
func (c Command) IsRequest() bool {
	switch c {
	case CmdSharedMem, CmdSetSourceCode, CmdExecute:
		return true
	}
	return false
}
