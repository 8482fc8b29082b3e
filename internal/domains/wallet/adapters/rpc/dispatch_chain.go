package rpc

import (
	"context"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/wallet/domain"
	"walletbridge/go-backend/internal/domains/wallet/policy"
	"walletbridge/go-backend/internal/domains/wallet/transport"
)

const defaultIDTransactionFee = "10000"

type createIDTxArgs struct {
	MasterWalletID string
	ChainID        string
	Inputs         jsonArg
	Payload        jsonArg
	Memo           string
	Fee            string
}

func (p *createIDTxArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("inputs", &p.Inputs),
		required("payload", &p.Payload),
		required("memo", &p.Memo),
		optional("fee", &p.Fee),
	}
}

type idRangeArgs struct {
	MasterWalletID string
	Start          int
	Count          int
	Internal       bool
}

func (p *idRangeArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("start", &p.Start),
		required("count", &p.Count),
		required("internal", &p.Internal),
	}
}

type didSignArgs struct {
	MasterWalletID string
	DID            string
	Message        string
	PayPassword    string
}

func (p *didSignArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("did", &p.DID),
		required("message", &p.Message),
		required("payPassword", &p.PayPassword),
	}
}

type verifySignatureArgs struct {
	MasterWalletID string
	PublicKey      string
	Message        string
	Signature      string
}

func (p *verifySignatureArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("publicKey", &p.PublicKey),
		required("message", &p.Message),
		required("signature", &p.Signature),
	}
}

type publicKeyArgs struct {
	MasterWalletID string
	PublicKey      string
}

func (p *publicKeyArgs) params() []param {
	return []param{required("masterWalletID", &p.MasterWalletID), required("publicKey", &p.PublicKey)}
}

type transferArgs struct {
	MasterWalletID string
	ChainID        string
	TargetAddress  string
	Amount         string
	AmountUnit     int
	GasPrice       string
	GasPriceUnit   int
	GasLimit       string
	Nonce          uint64
}

func (p *transferArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("targetAddress", &p.TargetAddress),
		required("amount", &p.Amount),
		required("amountUnit", &p.AmountUnit),
		required("gasPrice", &p.GasPrice),
		required("gasPriceUnit", &p.GasPriceUnit),
		required("gasLimit", &p.GasLimit),
		required("nonce", &p.Nonce),
	}
}

type transferGenericArgs struct {
	MasterWalletID string
	ChainID        string
	TargetAddress  string
	Amount         string
	AmountUnit     int
	GasPrice       string
	GasPriceUnit   int
	GasLimit       string
	Data           string
	Nonce          uint64
}

func (p *transferGenericArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("targetAddress", &p.TargetAddress),
		required("amount", &p.Amount),
		required("amountUnit", &p.AmountUnit),
		required("gasPrice", &p.GasPrice),
		required("gasPriceUnit", &p.GasPriceUnit),
		required("gasLimit", &p.GasLimit),
		required("data", &p.Data),
		required("nonce", &p.Nonce),
	}
}

type ethExportArgs struct {
	MasterWalletID string
	ChainID        string
	PayPassword    string
}

func (p *ethExportArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("payPassword", &p.PayPassword),
	}
}

type btcTxArgs struct {
	MasterWalletID string
	Inputs         jsonArg
	Outputs        jsonArg
	ChangeAddress  string
	FeePerKB       string
}

func (p *btcTxArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("inputs", &p.Inputs),
		required("outputs", &p.Outputs),
		required("changeAddress", &p.ChangeAddress),
		required("feePerKB", &p.FeePerKB),
	}
}

type withdrawArgs struct {
	MasterWalletID   string
	ChainID          string
	Inputs           jsonArg
	Amount           string
	MainchainAddress string
	Fee              string
	Memo             string
}

func (p *withdrawArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("inputs", &p.Inputs),
		required("amount", &p.Amount),
		required("mainchainAddress", &p.MainchainAddress),
		required("fee", &p.Fee),
		required("memo", &p.Memo),
	}
}

func (p createIDTxArgs) subWallet() (string, string)      { return p.MasterWalletID, p.ChainID }
func (p transferArgs) subWallet() (string, string)        { return p.MasterWalletID, p.ChainID }
func (p transferGenericArgs) subWallet() (string, string) { return p.MasterWalletID, p.ChainID }
func (p ethExportArgs) subWallet() (string, string)       { return p.MasterWalletID, p.ChainID }
func (p withdrawArgs) subWallet() (string, string)        { return p.MasterWalletID, p.ChainID }

func (p idRangeArgs) masterWalletID() string         { return p.MasterWalletID }
func (p didSignArgs) masterWalletID() string         { return p.MasterWalletID }
func (p verifySignatureArgs) masterWalletID() string { return p.MasterWalletID }
func (p publicKeyArgs) masterWalletID() string       { return p.MasterWalletID }
func (p btcTxArgs) masterWalletID() string           { return p.MasterWalletID }

// callWithChainKind serves commands that imply the chain by kind, such as the DID
// commands on the ID chain.
func callWithChainKind[P masterArgsOf, T any, PP paramsOf[P]](d *Dispatcher, kind domain.ChainKind, fn func(P, T) (any, error)) handler {
	return func(ctx context.Context, req request) (any, error) {
		var params P
		if err := decodeParams(req.action, req.args, PP(&params)); err != nil {
			return nil, err
		}
		return d.session.WithSubWalletOfKind(ctx, req.action, params.masterWalletID(), kind, func(h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
			c, err := capability[T](h, sw, kind)
			if err != nil {
				return nil, err
			}
			return fn(params, c)
		})
	}
}

func (d *Dispatcher) registerChains() {
	d.register(transport.ActionCreateIDTransaction, callWithSubWallet(d, func(p createIDTxArgs, h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		id, err := capability[contracts.IDChainSubWallet](h, sw, domain.ChainIDChain)
		if err != nil {
			return nil, err
		}
		fee := p.Fee
		if fee == "" {
			fee = defaultIDTransactionFee
		}
		return id.CreateIDTransaction(p.Inputs.raw(), p.Payload.raw(), p.Memo, fee)
	}))

	d.register(transport.ActionGetDID, callWithChainKind(d, domain.ChainIDChain, func(p idRangeArgs, id contracts.IDChainSubWallet) (any, error) {
		if err := policy.ValidateAddressRange(p.Start, p.Count); err != nil {
			return nil, err
		}
		return id.DIDs(p.Start, p.Count, p.Internal)
	}))

	d.register(transport.ActionGetCID, callWithChainKind(d, domain.ChainIDChain, func(p idRangeArgs, id contracts.IDChainSubWallet) (any, error) {
		if err := policy.ValidateAddressRange(p.Start, p.Count); err != nil {
			return nil, err
		}
		return id.CIDs(p.Start, p.Count, p.Internal)
	}))

	d.register(transport.ActionDIDSign, callWithChainKind(d, domain.ChainIDChain, func(p didSignArgs, id contracts.IDChainSubWallet) (any, error) {
		return id.DIDSign(p.DID, p.Message, p.PayPassword)
	}))

	d.register(transport.ActionVerifySignature, callWithChainKind(d, domain.ChainIDChain, func(p verifySignatureArgs, id contracts.IDChainSubWallet) (any, error) {
		return id.VerifySignature(p.PublicKey, p.Message, p.Signature)
	}))

	d.register(transport.ActionGetPublicKeyDID, callWithChainKind(d, domain.ChainIDChain, func(p publicKeyArgs, id contracts.IDChainSubWallet) (any, error) {
		return id.PublicKeyToDID(p.PublicKey)
	}))

	d.register(transport.ActionGetPublicKeyCID, callWithChainKind(d, domain.ChainIDChain, func(p publicKeyArgs, id contracts.IDChainSubWallet) (any, error) {
		return id.PublicKeyToCID(p.PublicKey)
	}))

	d.register(transport.ActionCreateTransfer, callWithSubWallet(d, func(p transferArgs, h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		eth, err := capability[contracts.EthSidechainSubWallet](h, sw, domain.ChainEthSidechain)
		if err != nil {
			return nil, err
		}
		return eth.CreateTransfer(p.TargetAddress, p.Amount, p.AmountUnit, p.GasPrice, p.GasPriceUnit, p.GasLimit, p.Nonce)
	}))

	d.register(transport.ActionCreateTransferGeneric, callWithSubWallet(d, func(p transferGenericArgs, h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		eth, err := capability[contracts.EthSidechainSubWallet](h, sw, domain.ChainEthSidechain)
		if err != nil {
			return nil, err
		}
		return eth.CreateTransferGeneric(p.TargetAddress, p.Amount, p.AmountUnit, p.GasPrice, p.GasPriceUnit, p.GasLimit, p.Data, p.Nonce)
	}))

	d.register(transport.ActionExportETHSCPrivateKey, callWithSubWallet(d, func(p ethExportArgs, h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		eth, err := capability[contracts.EthSidechainSubWallet](h, sw, domain.ChainEthSidechain)
		if err != nil {
			return nil, err
		}
		return eth.ExportPrivateKey(p.PayPassword)
	}))

	d.register(transport.ActionGetLegacyAddresses, callWithChainKind(d, domain.ChainBTCSidechain, func(p idRangeArgs, btc contracts.BTCSubWallet) (any, error) {
		if err := policy.ValidateAddressRange(p.Start, p.Count); err != nil {
			return nil, err
		}
		return btc.LegacyAddresses(p.Start, p.Count, p.Internal)
	}))

	d.register(transport.ActionCreateBTCTransaction, callWithChainKind(d, domain.ChainBTCSidechain, func(p btcTxArgs, btc contracts.BTCSubWallet) (any, error) {
		return btc.CreateBTCTransaction(p.Inputs.raw(), p.Outputs.raw(), p.ChangeAddress, p.FeePerKB)
	}))

	d.register(transport.ActionCreateWithdrawTransaction, callWithSubWallet(d, func(p withdrawArgs, h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		side, err := capability[contracts.SidechainSubWallet](h, sw, domain.ChainIDChain, domain.ChainSidechain, domain.ChainEthSidechain)
		if err != nil {
			return nil, err
		}
		return side.CreateWithdrawTransaction(p.Inputs.raw(), p.Amount, p.MainchainAddress, p.Fee, p.Memo)
	}))
}

// registerGovernance wires every mainchain governance action as an opaque
// pass-through of its trailing arguments.
func (d *Dispatcher) registerGovernance() {
	for action, arity := range transport.GovernanceArity {
		d.register(action, func(ctx context.Context, req request) (any, error) {
			masterID, chainID, args, err := decodeGovernanceArgs(req.action, req.args, arity)
			if err != nil {
				return nil, err
			}
			return d.session.WithSubWallet(ctx, req.action, masterID, chainID, func(h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
				mainchain, err := capability[contracts.MainchainSubWallet](h, sw, domain.ChainMainchain)
				if err != nil {
					return nil, err
				}
				return mainchain.Governance(req.action, args)
			})
		})
	}
}
