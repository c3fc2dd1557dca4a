package ledger

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const gradingABI = `[
	{"type":"function","name":"assignGrade","stateMutability":"nonpayable","outputs":[],
	 "inputs":[{"name":"tokenId","type":"uint256"},{"name":"grade","type":"uint16"}]},
	{"type":"event","name":"GradeAssigned","anonymous":false,
	 "inputs":[
		{"name":"tokenId","type":"uint256","indexed":true},
		{"name":"grader","type":"address","indexed":true},
		{"name":"grade","type":"uint16","indexed":false}
	 ]}
]`

var gradingAddr = common.HexToAddress("0x2000000000000000000000000000000000000002")

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("grading"); !errors.Is(err, ErrUnknownContract) {
		t.Errorf("expected ErrUnknownContract, got %v", err)
	}
}

func TestContractPack(t *testing.T) {
	r := NewRegistry()
	c, err := r.Register("grading", gradingAddr, gradingABI)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	data, err := c.Pack("assignGrade", big.NewInt(7), uint16(85))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	// selector + two words
	if len(data) != 4+64 {
		t.Errorf("unexpected calldata length %d", len(data))
	}
	if _, err := c.Pack("assignGrade", "bad"); err == nil {
		t.Error("expected pack error for wrong args")
	}
}

func TestContractDecodeLog(t *testing.T) {
	r := NewRegistry()
	c, _ := r.Register("grading", gradingAddr, gradingABI)

	ev := c.ABI.Events["GradeAssigned"]
	data, err := ev.Inputs.NonIndexed().Pack(uint16(85))
	if err != nil {
		t.Fatalf("pack data: %v", err)
	}
	grader := common.HexToAddress("0x3000000000000000000000000000000000000003")

	log := types.Log{
		Address: gradingAddr,
		Topics: []common.Hash{
			ev.ID,
			common.BigToHash(big.NewInt(7)),
			common.BytesToHash(grader.Bytes()),
		},
		Data: data,
	}

	args, err := c.DecodeLog("GradeAssigned", log)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id, ok := args["tokenId"].(*big.Int); !ok || id.Int64() != 7 {
		t.Errorf("unexpected tokenId %v", args["tokenId"])
	}
	if args["grader"] != grader {
		t.Errorf("unexpected grader %v", args["grader"])
	}
	if args["grade"] != uint16(85) {
		t.Errorf("unexpected grade %v", args["grade"])
	}

	log.Topics[0] = common.HexToHash("0xdead")
	if _, err := c.DecodeLog("GradeAssigned", log); err == nil {
		t.Error("expected error for foreign topic")
	}
}

func TestRegisterFileArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Grading.json")
	artifact := `{"contractName":"Grading","abi":` + gradingABI + `,"bytecode":"0x"}`
	if err := os.WriteFile(path, []byte(artifact), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRegistry()
	if _, err := r.RegisterFile("grading", gradingAddr, path); err != nil {
		t.Fatalf("register file: %v", err)
	}
	if keys := r.Keys(); len(keys) != 1 || keys[0] != "grading" {
		t.Errorf("unexpected keys %v", keys)
	}
}
