package core

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"pixelgopper/protocol"
)

// setField validates one JSON-shaped value and stores it in cfg
func setField(cfg *ChannelConfig, name string, v interface{}) error {
	switch name {
	case "id":
		n, err := toUint(v, math.MaxUint8)
		if err != nil {
			return err
		}
		cfg.ID = uint8(n)
	case "chipset":
		s, err := toString(v)
		if err != nil {
			return err
		}
		if _, err := protocol.ParseChipset(s); err != nil {
			return err
		}
		cfg.Chipset = s
	case "transport":
		s, err := toString(v)
		if err != nil {
			return err
		}
		switch strings.ToLower(s) {
		case "", TransportPulse, TransportSerial, "uart":
		default:
			return ErrBadFieldValue
		}
		cfg.Transport = s
	case "peripheral":
		n, err := toUint(v, math.MaxUint8)
		if err != nil {
			return err
		}
		cfg.Peripheral = uint8(n)
	case "pin":
		n, err := toUint(v, math.MaxUint8)
		if err != nil {
			return err
		}
		cfg.Pin = uint8(n)
	case "pixels":
		n, err := toUint(v, math.MaxUint16)
		if err != nil {
			return err
		}
		cfg.Pixels = int(n)
	case "color_order":
		s, err := toString(v)
		if err != nil {
			return err
		}
		if _, err := ParseColorOrder(s); err != nil {
			return err
		}
		cfg.ColorOrder = s
	case "brightness":
		n, err := toUint(v, math.MaxUint8)
		if err != nil {
			return err
		}
		cfg.Brightness = uint8(n)
	case "min_frame_us":
		n, err := toUint(v, math.MaxUint32)
		if err != nil {
			return err
		}
		cfg.MinFrameUs = uint32(n)
	case "interframe_gap_us":
		n, err := toUint(v, MaxInterframeGapUs)
		if err != nil {
			return err
		}
		cfg.InterframeGapUs = uint32(n)
	case "invert":
		b, ok := v.(bool)
		if !ok {
			return ErrBadFieldValue
		}
		cfg.Invert = b
	case "fifo_threshold":
		n, err := toUint(v, math.MaxUint8)
		if err != nil {
			return err
		}
		cfg.FifoThreshold = uint8(n)
	case "frame_prepend", "pixel_prepend", "frame_append":
		s, err := toString(v)
		if err != nil {
			return err
		}
		if _, err := hex.DecodeString(s); err != nil {
			return ErrBadFieldValue
		}
		switch name {
		case "frame_prepend":
			cfg.FramePrepend = s
		case "pixel_prepend":
			cfg.PixelPrepend = s
		default:
			cfg.FrameAppend = s
		}
	default:
		return ErrUnknownField
	}
	return nil
}

func toString(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", ErrBadFieldValue
	}
	return s, nil
}

// toUint accepts the numeric shapes a decoded JSON or YAML document can
// hold and range checks them
func toUint(v interface{}, max uint64) (uint64, error) {
	var n uint64
	switch x := v.(type) {
	case float64:
		if x < 0 || x != math.Trunc(x) || x > float64(max) {
			return 0, ErrBadFieldValue
		}
		n = uint64(x)
	case int:
		if x < 0 {
			return 0, ErrBadFieldValue
		}
		n = uint64(x)
	case int64:
		if x < 0 {
			return 0, ErrBadFieldValue
		}
		n = uint64(x)
	case uint8:
		n = uint64(x)
	case uint16:
		n = uint64(x)
	case uint32:
		n = uint64(x)
	case uint64:
		n = x
	case json.Number:
		u, err := strconv.ParseUint(string(x), 10, 64)
		if err != nil {
			return 0, ErrBadFieldValue
		}
		n = u
	case string:
		u, err := strconv.ParseUint(x, 0, 64)
		if err != nil {
			return 0, ErrBadFieldValue
		}
		n = u
	default:
		return 0, ErrBadFieldValue
	}
	if n > max {
		return 0, ErrBadFieldValue
	}
	return n, nil
}
