package domain

import (
	"slices"
	"strings"

	"walletbridge/go-backend/internal/domains/contracts"
)

type ChainKind string

const (
	ChainUnsupported  ChainKind = ""
	ChainMainchain    ChainKind = "mainchain"
	ChainIDChain      ChainKind = "id-chain"
	ChainEthSidechain ChainKind = "eth-sidechain"
	ChainBTCSidechain ChainKind = "btc-sidechain"
	ChainSidechain    ChainKind = "sidechain"
)

// ClassifyChain maps an engine chain id onto the chain kind that decides
// which capability interface a sub wallet must implement.
func ClassifyChain(chainID string) ChainKind {
	switch chainID {
	case "ELA":
		return ChainMainchain
	case "IDChain", "ID":
		return ChainIDChain
	case "BTC":
		return ChainBTCSidechain
	case "TokenChain":
		return ChainSidechain
	}
	if strings.HasPrefix(chainID, "ETH") && len(chainID) > len("ETH") {
		return ChainEthSidechain
	}
	return ChainUnsupported
}

// SubWalletID is the composite identifier of a sub wallet.
func SubWalletID(masterWalletID, chainID string) string {
	return masterWalletID + ":" + chainID
}

// ManagerHandle wraps the live engine root object.
type ManagerHandle struct {
	engine contracts.Engine
	config contracts.ManagerConfig
	alive  bool
}

func (h *ManagerHandle) Engine() (contracts.Engine, error) {
	if h == nil || !h.alive {
		return nil, contracts.ErrHandleInvalidated
	}
	return h.engine, nil
}

func (h *ManagerHandle) Config() contracts.ManagerConfig {
	if h == nil {
		return contracts.ManagerConfig{}
	}
	return h.config
}

func (h *ManagerHandle) Alive() bool { return h != nil && h.alive }

// MasterWalletHandle is owned by the WalletRegistry. It keeps the set of its
// children so a destroy can walk them before the parent goes away.
type MasterWalletHandle struct {
	id       string
	network  string
	mode     contracts.CreationMode
	engine   contracts.MasterWallet
	children map[string]*SubWalletHandle
	alive    bool
}

func (h *MasterWalletHandle) ID() string { return h.id }

func (h *MasterWalletHandle) Network() string { return h.network }

func (h *MasterWalletHandle) Mode() contracts.CreationMode { return h.mode }

func (h *MasterWalletHandle) Alive() bool { return h != nil && h.alive }

func (h *MasterWalletHandle) Engine() (contracts.MasterWallet, error) {
	if !h.Alive() {
		return nil, contracts.ErrHandleInvalidated
	}
	return h.engine, nil
}

// ChainIDs lists the live children, sorted.
func (h *MasterWalletHandle) ChainIDs() []string {
	out := make([]string, 0, len(h.children))
	for chainID := range h.children {
		out = append(out, chainID)
	}
	slices.Sort(out)
	return out
}

func (h *MasterWalletHandle) child(chainID string) (*SubWalletHandle, bool) {
	sub, ok := h.children[chainID]
	return sub, ok
}

type SubWalletHandle struct {
	masterID string
	chainID  string
	kind     ChainKind
	engine   contracts.SubWallet
	alive    bool
}

func (h *SubWalletHandle) ID() string { return SubWalletID(h.masterID, h.chainID) }

func (h *SubWalletHandle) MasterWalletID() string { return h.masterID }

func (h *SubWalletHandle) ChainID() string { return h.chainID }

func (h *SubWalletHandle) Kind() ChainKind { return h.kind }

func (h *SubWalletHandle) Alive() bool { return h != nil && h.alive }

func (h *SubWalletHandle) Engine() (contracts.SubWallet, error) {
	if !h.Alive() {
		return nil, contracts.ErrHandleInvalidated
	}
	return h.engine, nil
}
