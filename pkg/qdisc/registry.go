package qdisc

import (
	"fmt"
	"strconv"

	"github.com/veesix-networks/linkshaper/pkg/clock"
)

// New selects a discipline by name. Recognized names: droptail,
// drophead, codel, blue, infinite. Args carry the per-discipline
// knobs (packets, bytes, target, interval, seed) as decimal strings.
func New(name string, args map[string]string, clk clock.Clock) (Queue, error) {
	packets, err := intArg(args, "packets")
	if err != nil {
		return nil, err
	}
	bytes, err := intArg(args, "bytes")
	if err != nil {
		return nil, err
	}

	switch name {
	case "droptail":
		return NewDropTail(packets, bytes)
	case "drophead":
		return NewDropHead(packets, bytes)
	case "codel":
		target, err := uintArg(args, "target")
		if err != nil {
			return nil, err
		}
		interval, err := uintArg(args, "interval")
		if err != nil {
			return nil, err
		}
		return NewCoDel(packets, bytes, target, interval, clk)
	case "blue":
		seed, err := intArg(args, "seed")
		if err != nil {
			return nil, err
		}
		return NewBlue(packets, bytes, int64(seed))
	case "infinite":
		return NewInfinite(), nil
	default:
		return nil, fmt.Errorf("unknown queue discipline %q", name)
	}
}

func intArg(args map[string]string, key string) (int, error) {
	s, ok := args[key]
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("queue argument %s=%q: must be a nonnegative integer", key, s)
	}
	return v, nil
}

func uintArg(args map[string]string, key string) (uint64, error) {
	s, ok := args[key]
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("queue argument %s=%q: must be a nonnegative integer", key, s)
	}
	return v, nil
}
