package artifact

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// ParseArgs converts command-line arguments to the Go values abi.Arguments.Pack
// expects. Only scalar types are supported.
func ParseArgs(inputs abi.Arguments, raw []string) ([]interface{}, error) {
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("%w: constructor takes %d argument(s) (%s), got %d",
			apperrors.ErrInvalidArgument, len(inputs), signature(inputs), len(raw))
	}

	values := make([]interface{}, len(inputs))
	for i, in := range inputs {
		v, err := parseArg(in.Type, strings.TrimSpace(raw[i]))
		if err != nil {
			name := in.Name
			if name == "" {
				name = "#" + strconv.Itoa(i)
			}
			return nil, fmt.Errorf("%w: argument %s (%s): %v", apperrors.ErrInvalidArgument, name, in.Type.String(), err)
		}
		values[i] = v
	}
	return values, nil
}

func parseArg(t abi.Type, s string) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%q is not a hex address", s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		return strconv.ParseBool(s)

	case abi.StringTy:
		return s, nil

	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, err
		}
		if len(b) > t.Size {
			return nil, fmt.Errorf("%d bytes do not fit in bytes%d", len(b), t.Size)
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil

	case abi.IntTy, abi.UintTy:
		return parseInteger(t, s)

	default:
		return nil, fmt.Errorf("unsupported type")
	}
}

func parseInteger(t abi.Type, s string) (interface{}, error) {
	n, ok := new(big.Int).SetString(strings.ReplaceAll(s, "_", ""), 0)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}

	signed := t.T == abi.IntTy
	if signed {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
		if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, fmt.Errorf("%s overflows int%d", s, t.Size)
		}
	} else {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("%s is negative", s)
		}
		if n.BitLen() > t.Size {
			return nil, fmt.Errorf("%s overflows uint%d", s, t.Size)
		}
	}

	// Pack wants the exact Go type for the native widths and *big.Int above.
	switch t.Size {
	case 8:
		if signed {
			return int8(n.Int64()), nil
		}
		return uint8(n.Uint64()), nil
	case 16:
		if signed {
			return int16(n.Int64()), nil
		}
		return uint16(n.Uint64()), nil
	case 32:
		if signed {
			return int32(n.Int64()), nil
		}
		return uint32(n.Uint64()), nil
	case 64:
		if signed {
			return n.Int64(), nil
		}
		return n.Uint64(), nil
	default:
		return n, nil
	}
}

func signature(inputs abi.Arguments) string {
	types := make([]string, len(inputs))
	for i, in := range inputs {
		types[i] = in.Type.String()
	}
	return strings.Join(types, ",")
}
