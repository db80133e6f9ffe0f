package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	addressType = reflect.TypeOf(common.Address{})
	hashType    = reflect.TypeOf(common.Hash{})
	bigIntType  = reflect.TypeOf(&big.Int{})
)

// EncodeArgs renders resolved contract arguments as portable JSON: addresses
// and byte strings become hex, integers become decimal strings and tuples
// become arrays in field order.
func EncodeArgs(args []any) (json.RawMessage, error) {
	portable := make([]any, 0, len(args))
	for i, arg := range args {
		v, err := portableValue(reflect.ValueOf(arg))
		if err != nil {
			return nil, fmt.Errorf("failed to encode argument %d: %w", i, err)
		}
		portable = append(portable, v)
	}

	data, err := json.Marshal(portable)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments: %w", err)
	}
	return data, nil
}

// DecodeArgs is the inverse of EncodeArgs up to representation: numbers come
// back as strings or json.Number, which the chain gateway coerces to the ABI
// types again.
func DecodeArgs(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var args []any
	if err := decoder.Decode(&args); err != nil {
		return nil, fmt.Errorf("failed to decode recorded arguments: %w", err)
	}
	return args, nil
}

func portableValue(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	switch v.Type() {
	case addressType:
		return v.Interface().(common.Address).Hex(), nil
	case hashType:
		return v.Interface().(common.Hash).Hex(), nil
	case bigIntType:
		if v.IsNil() {
			return nil, nil
		}
		return v.Interface().(*big.Int).String(), nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, nil
		}
		return portableValue(v.Elem())
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(v.Int()).String(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(v.Uint()).String(), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			return hexutil.Encode(b), nil
		}
		out := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			item, err := portableValue(v.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case reflect.Struct:
		out := make([]any, 0, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			item, err := portableValue(v.Field(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported argument type %s", v.Type())
	}
}
