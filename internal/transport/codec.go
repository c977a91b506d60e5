package transport

import (
	"encoding/json"
	"fmt"

	"github.com/rickgao/tws-session/internal/event"
)

type decodeFunc func(data []byte) (event.Event, error)

func decoder[T event.Event]() decodeFunc {
	return func(data []byte) (event.Event, error) {
		var ev T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev); err != nil {
				return nil, err
			}
		}
		return ev, nil
	}
}

var decoders = map[string]decodeFunc{}

func register[T event.Event]() {
	var zero T
	decoders[zero.Name()] = decoder[T]()
}

func init() {
	register[event.NextValidID]()
	register[event.ManagedAccounts]()
	register[event.CurrentTime]()
	register[event.Error]()
	register[event.OpenOrder]()
	register[event.OrderStatus]()
	register[event.OpenOrderEnd]()
	register[event.Execution]()
	register[event.ExecutionEnd]()
	register[event.Position]()
	register[event.PositionEnd]()
	register[event.Portfolio]()
	register[event.AccountDownloadEnd]()
	register[event.TickPrice]()
	register[event.TickSize]()
	register[event.TickString]()
	register[event.TickGeneric]()
	register[event.TickSnapshotEnd]()
	register[event.MarketDepth]()
	register[event.ContractDetails]()
	register[event.ContractDetailsEnd]()
}

// Decode parses one inbound frame.
func Decode(frame []byte) (event.Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	decode, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	ev, err := decode(env.Data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", env.Type, err)
	}
	return ev, nil
}

// Encode frames an outbound request.
func Encode(req Request) ([]byte, error) {
	env := envelope{Type: req.Type, ID: req.ID}
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", req.Type, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeEvent frames an inbound event. Used by terminal fakes.
func EncodeEvent(ev event.Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Name(), err)
	}
	return json.Marshal(envelope{Type: ev.Name(), Data: data})
}
