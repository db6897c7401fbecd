// Package artifact loads compiled Hardhat contract artifacts and encodes
// deployment payloads from them.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// ContractArtifact is a compiled Solidity contract with ABI and bytecode, in
// the hh-sol-artifact-1 layout.
type ContractArtifact struct {
	Format           string          `json:"_format,omitempty"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         Bytecode        `json:"bytecode"`
	DeployedBytecode Bytecode        `json:"deployedBytecode,omitempty"`

	// path is the file the artifact was read from.
	path string
}

// Bytecode contains contract bytecode. It accepts both "0x6080..." and
// {"object": "0x6080..."}.
type Bytecode struct {
	hex string
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode hex string.
func (b Bytecode) String() string {
	return b.hex
}

// FullyQualifiedName returns "sourceName:contractName".
func (a *ContractArtifact) FullyQualifiedName() string {
	return a.SourceName + ":" + a.ContractName
}

// Path returns the file the artifact was loaded from, if any.
func (a *ContractArtifact) Path() string {
	return a.path
}

// ParsedABI parses the artifact ABI.
func (a *ContractArtifact) ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse %s ABI: %w", a.ContractName, err)
	}
	return parsed, nil
}

// BytecodeBytes returns the creation bytecode. Abstract contracts, interfaces
// and artifacts with unlinked libraries are rejected.
func (a *ContractArtifact) BytecodeBytes() ([]byte, error) {
	code := a.Bytecode.hex
	if strings.Contains(code, "__$") {
		return nil, fmt.Errorf("%w: %s requires library linking", apperrors.ErrConfiguration, a.ContractName)
	}
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("%w: %s has no bytecode (abstract contract or interface?)", apperrors.ErrConfiguration, a.ContractName)
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	b, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bytecode: %v", apperrors.ErrConfiguration, a.ContractName, err)
	}
	return b, nil
}

// BytecodeHash is the keccak256 of the creation bytecode, used to tell
// journal records of different builds apart.
func (a *ContractArtifact) BytecodeHash() (string, error) {
	code, err := a.BytecodeBytes()
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hash(code).Hex(), nil
}

// EncodeConstructorArgs converts textual arguments to the constructor's ABI
// types and packs them. Returns nil for a constructor without inputs.
func (a *ContractArtifact) EncodeConstructorArgs(args []string) ([]byte, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}

	values, err := ParseArgs(parsed.Constructor.Inputs, args)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	packed, err := parsed.Constructor.Inputs.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("%w: pack constructor args: %v", apperrors.ErrInvalidArgument, err)
	}
	return packed, nil
}

// EncodeDeployment returns creation bytecode followed by the packed
// constructor arguments.
func (a *ContractArtifact) EncodeDeployment(args []string) ([]byte, error) {
	code, err := a.BytecodeBytes()
	if err != nil {
		return nil, err
	}
	packed, err := a.EncodeConstructorArgs(args)
	if err != nil {
		return nil, err
	}
	return append(code, packed...), nil
}
