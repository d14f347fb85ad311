package types

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// VmList is []Vm with JSON/BSON codecs that encode the tagged-variant
// wire form ("type": "wrk"|"lb" plus the variant's own fields) the same
// way the original Python model's pydantic discriminated union does.
type VmList []Vm

// vmWire is the on-the-wire shape for a single Vm, shared by both
// encodings. Upstream is only populated (and only read back) for "lb".
type vmWire struct {
	Type     VmType     `json:"type" bson:"type"`
	Service  string     `json:"service" bson:"service"`
	Manager  string     `json:"manager" bson:"manager"`
	Address  netip.Addr `json:"address" bson:"address"`
	Port     int        `json:"port" bson:"port"`
	Token    string     `json:"token" bson:"token"`
	Upstream []Upstream `json:"upstream,omitempty" bson:"upstream,omitempty"`
}

func toWire(vm Vm) vmWire {
	b := vm.Base()
	w := vmWire{
		Type:    vm.vmTag(),
		Service: b.Service,
		Manager: b.Manager,
		Address: b.Address,
		Port:    b.Port,
		Token:   b.Token,
	}
	if lb, ok := vm.(LoadBalancer); ok {
		w.Upstream = lb.Upstream
	}
	return w
}

func fromWire(w vmWire) (Vm, error) {
	base := VmBase{
		Service: w.Service,
		Manager: w.Manager,
		Address: w.Address,
		Port:    w.Port,
		Token:   w.Token,
	}
	switch w.Type {
	case VmTypeWorker:
		return Worker{VmBase: base}, nil
	case VmTypeLoadBalancer:
		return LoadBalancer{VmBase: base, Upstream: w.Upstream}, nil
	default:
		return nil, fmt.Errorf("vm %q: unknown type %q", w.Token, w.Type)
	}
}

// MarshalJSON implements json.Marshaler.
func (vms VmList) MarshalJSON() ([]byte, error) {
	wire := make([]vmWire, len(vms))
	for i, vm := range vms {
		wire[i] = toWire(vm)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler.
func (vms *VmList) UnmarshalJSON(data []byte) error {
	var wire []vmWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := make(VmList, 0, len(wire))
	for _, w := range wire {
		vm, err := fromWire(w)
		if err != nil {
			return err
		}
		out = append(out, vm)
	}
	*vms = out
	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler so a VmList encodes
// as a plain BSON array of tagged documents rather than requiring a
// registered codec for the Vm interface.
func (vms VmList) MarshalBSONValue() (bsontype.Type, []byte, error) {
	wire := make([]vmWire, len(vms))
	for i, vm := range vms {
		wire[i] = toWire(vm)
	}
	return bson.MarshalValue(wire)
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (vms *VmList) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var wire []vmWire
	if err := bson.UnmarshalValue(t, data, &wire); err != nil {
		return err
	}
	out := make(VmList, 0, len(wire))
	for _, w := range wire {
		vm, err := fromWire(w)
		if err != nil {
			return err
		}
		out = append(out, vm)
	}
	*vms = out
	return nil
}
