package config

import (
	"fmt"
	"strconv"
	"strings"
)

// CustomStep is one access inside a custom operation.
type CustomStep struct {
	Write  bool
	OnDRAM bool
	Size   uint64
}

// CustomOp is a sequence of accesses timed as a single operation. Its text
// form is a comma separated list of steps, each a kind ("r" or "w"), an
// optional "d" targeting the DRAM region, and a size in bytes: "r64,wd256".
type CustomOp struct {
	Steps []CustomStep
}

// ParseCustomOp parses the text form of a custom operation.
func ParseCustomOp(s string) (CustomOp, error) {
	var op CustomOp

	for _, raw := range strings.Split(s, ",") {
		tok := strings.TrimSpace(raw)
		if len(tok) < 2 {
			return CustomOp{}, fmt.Errorf("%w: custom operation %q: bad step %q",
				ErrInvalidArgument, s, raw)
		}

		var step CustomStep

		switch tok[0] {
		case 'r', 'R':
		case 'w', 'W':
			step.Write = true
		default:
			return CustomOp{}, fmt.Errorf("%w: custom operation %q: unknown kind %q",
				ErrInvalidArgument, s, tok[:1])
		}

		tok = tok[1:]
		if tok[0] == 'd' || tok[0] == 'D' {
			step.OnDRAM = true
			tok = tok[1:]
		}

		size, err := strconv.ParseUint(tok, 10, 64)
		if err != nil || size == 0 {
			return CustomOp{}, fmt.Errorf("%w: custom operation %q: bad size %q",
				ErrInvalidArgument, s, tok)
		}

		step.Size = size
		op.Steps = append(op.Steps, step)
	}

	return op, nil
}

// Size returns the bytes touched on the device (dram=false) or on the DRAM
// region (dram=true).
func (c CustomOp) Size(dram bool) uint64 {
	var n uint64
	for _, s := range c.Steps {
		if s.OnDRAM == dram {
			n += s.Size
		}
	}

	return n
}

func (c CustomOp) String() string {
	parts := make([]string, len(c.Steps))
	for i, s := range c.Steps {
		kind := "r"
		if s.Write {
			kind = "w"
		}
		if s.OnDRAM {
			kind += "d"
		}
		parts[i] = kind + strconv.FormatUint(s.Size, 10)
	}

	return strings.Join(parts, ",")
}

// MarshalText implements encoding.TextMarshaler.
func (c CustomOp) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CustomOp) UnmarshalText(b []byte) error {
	op, err := ParseCustomOp(string(b))
	if err != nil {
		return err
	}

	*c = op

	return nil
}
