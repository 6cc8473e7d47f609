package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Artifact is a compiled contract as emitted by Foundry (out/) or Hardhat
// (artifacts/). Only the pieces needed to deploy and bind are retained.
type Artifact struct {
	ContractName     string
	ABI              abi.ABI
	RawABI           json.RawMessage
	Bytecode         []byte
	DeployedBytecode []byte
}

type artifactJSON struct {
	ContractName     string          `json:"contractName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         json.RawMessage `json:"bytecode"`
	DeployedBytecode json.RawMessage `json:"deployedBytecode"`
	Metadata         *struct {
		Settings struct {
			CompilationTarget map[string]string `json:"compilationTarget"`
		} `json:"settings"`
	} `json:"metadata"`
}

// Parse decodes a compiled contract artifact, accepting both the Foundry and
// the Hardhat JSON layouts.
func Parse(data []byte) (Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Artifact{}, fmt.Errorf("decoding artifact json: %v", err)
	}
	if len(raw.ABI) == 0 {
		return Artifact{}, errors.New("artifact has no abi")
	}
	parsed, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return Artifact{}, fmt.Errorf("parsing abi: %v", err)
	}
	code, err := decodeBytecode(raw.Bytecode)
	if err != nil {
		return Artifact{}, fmt.Errorf("decoding creation bytecode: %v", err)
	}
	if len(code) == 0 {
		return Artifact{}, errors.New("artifact has empty creation bytecode")
	}
	deployed, err := decodeBytecode(raw.DeployedBytecode)
	if err != nil {
		return Artifact{}, fmt.Errorf("decoding deployed bytecode: %v", err)
	}

	name := raw.ContractName
	if name == "" && raw.Metadata != nil {
		// Foundry keeps the name in the metadata compilation target.
		for _, target := range raw.Metadata.Settings.CompilationTarget {
			name = target
			break
		}
	}

	return Artifact{
		ContractName:     name,
		ABI:              parsed,
		RawABI:           raw.ABI,
		Bytecode:         code,
		DeployedBytecode: deployed,
	}, nil
}

// ReadFile reads and parses the artifact at path.
func ReadFile(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("reading artifact %s: %v", path, err)
	}
	art, err := Parse(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("parsing artifact %s: %v", path, err)
	}
	return art, nil
}

// decodeBytecode accepts either a plain hex string (Hardhat) or an object
// with an "object" hex field (Foundry). A missing value decodes to nil.
func decodeBytecode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return fromHex(s)
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("unsupported bytecode encoding: %v", err)
	}
	return fromHex(obj.Object)
}

func fromHex(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	code := common.FromHex(s)
	if len(code) == 0 {
		return nil, fmt.Errorf("invalid hex bytecode %q", s)
	}
	return code, nil
}
