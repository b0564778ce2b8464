package radio

import (
	"fmt"

	"github.com/sarchlab/karma/karma"
)

// InputKind identifies a radio command.
type InputKind int

// The radio commands.
const (
	Init InputKind = iota
	SwitchToTransmit
	SwitchToReceive
	Send
)

func (k InputKind) String() string {
	switch k {
	case Init:
		return "Init"
	case SwitchToTransmit:
		return "SwitchToTransmit"
	case SwitchToReceive:
		return "SwitchToReceive"
	case Send:
		return "Send"
	default:
		return fmt.Sprintf("InputKind(%d)", int(k))
	}
}

// Input is a command sent from the CPU to the radio. Payload is only used by
// Send.
type Input struct {
	Kind    InputKind
	Payload []byte
}

// NewInit creates an Init command.
func NewInit() Input { return Input{Kind: Init} }

// NewSwitchToTransmit creates a SwitchToTransmit command.
func NewSwitchToTransmit() Input { return Input{Kind: SwitchToTransmit} }

// NewSwitchToReceive creates a SwitchToReceive command.
func NewSwitchToReceive() Input { return Input{Kind: SwitchToReceive} }

// NewSend creates a Send command that transmits payload.
func NewSend(payload []byte) Input {
	return Input{Kind: Send, Payload: payload}
}

// RequiredInitialState returns the state the radio must be in to accept the
// command.
func (in Input) RequiredInitialState() State {
	switch in.Kind {
	case Init:
		return NotInitialized
	case SwitchToTransmit:
		return Receiving
	case SwitchToReceive, Send:
		return Transmitting
	}

	panic(fmt.Sprintf("radio: unknown input %v", in.Kind))
}

// ResultingState returns the state the radio enters when it accepts the
// command. A Send leaves the radio in SendInProgress until SendDone.
func (in Input) ResultingState() State {
	switch in.Kind {
	case Init, SwitchToReceive:
		return Receiving
	case SwitchToTransmit:
		return Transmitting
	case Send:
		return SendInProgress
	}

	panic(fmt.Sprintf("radio: unknown input %v", in.Kind))
}

// Replayable reports whether the command restores state when sent again.
// A transmission does not.
func (in Input) Replayable() bool {
	return in.Kind != Send
}

func (in Input) String() string {
	if in.Kind == Send {
		return fmt.Sprintf("Send(%d bytes)", len(in.Payload))
	}

	return in.Kind.String()
}

// OutputKind identifies a radio response.
type OutputKind int

// The radio responses.
const (
	InitDone OutputKind = iota
	SendDone
	DataReceived
)

func (k OutputKind) String() string {
	switch k {
	case InitDone:
		return "InitDone"
	case SendDone:
		return "SendDone"
	case DataReceived:
		return "DataReceived"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// Output is a response interrupt raised by the radio. Payload is only used
// by DataReceived.
type Output struct {
	Kind    OutputKind
	Payload []byte
}

// RequiredInitialState returns the state the radio is in when it raises the
// response.
func (out Output) RequiredInitialState() State {
	switch out.Kind {
	case InitDone:
		return NotInitialized
	case SendDone:
		return SendInProgress
	case DataReceived:
		return Receiving
	}

	panic(fmt.Sprintf("radio: unknown output %v", out.Kind))
}

// ResultingState returns the state the radio is in after the response.
func (out Output) ResultingState() State {
	switch out.Kind {
	case InitDone, DataReceived:
		return Receiving
	case SendDone:
		return Transmitting
	}

	panic(fmt.Sprintf("radio: unknown output %v", out.Kind))
}

func (out Output) String() string {
	if out.Kind == DataReceived {
		return fmt.Sprintf("DataReceived(%x)", out.Payload)
	}

	return out.Kind.String()
}

// Protocol pairs radio commands with their responses by kind.
type Protocol struct{}

// ExpectsResponse reports whether the radio answers cmd. The switch commands
// complete without a response.
func (Protocol) ExpectsResponse(cmd Input) bool {
	return cmd.Kind == Init || cmd.Kind == Send
}

// Matches reports whether out answers req. Any SendDone answers any Send.
func (Protocol) Matches(req karma.Request[Input], out Output) bool {
	cmd, ok := req.Command()
	if !ok {
		return out.Kind == DataReceived
	}

	switch cmd.Kind {
	case Init:
		return out.Kind == InitDone
	case Send:
		return out.Kind == SendDone
	default:
		return false
	}
}

var (
	_ karma.Msg[State]              = Input{}
	_ karma.Msg[State]              = Output{}
	_ karma.Protocol[Input, Output] = Protocol{}
	_ karma.Replayable              = Input{}
)
