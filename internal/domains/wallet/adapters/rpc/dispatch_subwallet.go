package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"

	qrcode "github.com/skip2/go-qrcode"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/wallet/domain"
	"walletbridge/go-backend/internal/domains/wallet/policy"
	"walletbridge/go-backend/internal/domains/wallet/transport"
	"walletbridge/go-backend/pkg/models"
)

const (
	defaultQRCodeSize = 256
	minQRCodeSize     = 64
	maxQRCodeSize     = 1024
)

type subArgs struct {
	MasterWalletID string
	ChainID        string
}

func (p *subArgs) params() []param {
	return []param{required("masterWalletID", &p.MasterWalletID), required("chainID", &p.ChainID)}
}

type rangeArgs struct {
	MasterWalletID string
	ChainID        string
	Start          int
	Count          int
	Internal       bool
}

func (p *rangeArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("start", &p.Start),
		required("count", &p.Count),
		required("internal", &p.Internal),
	}
}

type createTxArgs struct {
	MasterWalletID string
	ChainID        string
	Inputs         jsonArg
	Outputs        jsonArg
	Fee            string
	Memo           string
}

func (p *createTxArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("inputs", &p.Inputs),
		required("outputs", &p.Outputs),
		required("fee", &p.Fee),
		required("memo", &p.Memo),
	}
}

type signTxArgs struct {
	MasterWalletID string
	ChainID        string
	Tx             jsonArg
	PayPassword    string
}

func (p *signTxArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("tx", &p.Tx),
		required("payPassword", &p.PayPassword),
	}
}

type txArgs struct {
	MasterWalletID string
	ChainID        string
	Tx             jsonArg
}

func (p *txArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("tx", &p.Tx),
	}
}

type signDigestArgs struct {
	MasterWalletID string
	ChainID        string
	Address        string
	Digest         string
	PayPassword    string
}

func (p *signDigestArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("address", &p.Address),
		required("digest", &p.Digest),
		required("payPassword", &p.PayPassword),
	}
}

type verifyDigestArgs struct {
	MasterWalletID string
	ChainID        string
	PublicKey      string
	Digest         string
	Signature      string
}

func (p *verifyDigestArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("publicKey", &p.PublicKey),
		required("digest", &p.Digest),
		required("signature", &p.Signature),
	}
}

type qrCodeArgs struct {
	MasterWalletID string
	ChainID        string
	Address        string
	Size           int
}

func (p *qrCodeArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("address", &p.Address),
		optional("size", &p.Size),
	}
}

// subArgsOf is satisfied by argument structs addressing one sub wallet.
type subArgsOf interface {
	subWallet() (masterWalletID, chainID string)
}

func (p subArgs) subWallet() (string, string)          { return p.MasterWalletID, p.ChainID }
func (p rangeArgs) subWallet() (string, string)        { return p.MasterWalletID, p.ChainID }
func (p createTxArgs) subWallet() (string, string)     { return p.MasterWalletID, p.ChainID }
func (p signTxArgs) subWallet() (string, string)       { return p.MasterWalletID, p.ChainID }
func (p txArgs) subWallet() (string, string)           { return p.MasterWalletID, p.ChainID }
func (p signDigestArgs) subWallet() (string, string)   { return p.MasterWalletID, p.ChainID }
func (p verifyDigestArgs) subWallet() (string, string) { return p.MasterWalletID, p.ChainID }

// callWithSubWallet decodes P and runs fn against the live sub wallet it names.
func callWithSubWallet[P subArgsOf, PP paramsOf[P]](d *Dispatcher, fn func(P, *domain.SubWalletHandle, contracts.SubWallet) (any, error)) handler {
	return func(ctx context.Context, req request) (any, error) {
		var params P
		if err := decodeParams(req.action, req.args, PP(&params)); err != nil {
			return nil, err
		}
		masterID, chainID := params.subWallet()
		return d.session.WithSubWallet(ctx, req.action, masterID, chainID, func(h *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
			return fn(params, h, sw)
		})
	}
}

// capability narrows a sub wallet to the interface a chain-specific command
// needs. The handle's chain kind must be one of kinds.
func capability[T any](h *domain.SubWalletHandle, sw contracts.SubWallet, kinds ...domain.ChainKind) (T, error) {
	var zero T
	if !slices.Contains(kinds, h.Kind()) {
		return zero, fmt.Errorf("%w: %s is a %s sub wallet", contracts.ErrWrongChainKind, h.ID(), h.Kind())
	}
	c, ok := sw.(T)
	if !ok {
		return zero, fmt.Errorf("%w: engine sub wallet %s lacks the capability", contracts.ErrWrongChainKind, h.ID())
	}
	return c, nil
}

func (d *Dispatcher) registerSubWallets() {
	d.register(transport.ActionGetAllSubWallets, callWithParams(func(ctx context.Context, p masterArgs) (any, error) {
		return d.session.DescribeSubWallets(ctx, p.MasterWalletID)
	}))

	d.register(transport.ActionCreateSubWallet, callWithParams(func(ctx context.Context, p subArgs) (any, error) {
		chainID, err := policy.ValidateChainID(p.ChainID)
		if err != nil {
			return nil, err
		}
		return d.session.CreateSubWallet(ctx, p.MasterWalletID, chainID)
	}))

	d.register(transport.ActionDestroySubWallet, callWithParams(func(ctx context.Context, p subArgs) (any, error) {
		removed, err := d.session.DestroySubWallet(ctx, p.MasterWalletID, p.ChainID)
		if err != nil {
			return nil, err
		}
		return models.DestroySubWalletResult{
			SubWalletID:   domain.SubWalletID(p.MasterWalletID, p.ChainID),
			Subscriptions: removed,
		}, nil
	}))

	d.register(transport.ActionGetAddresses, callWithSubWallet(d, func(p rangeArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		if err := policy.ValidateAddressRange(p.Start, p.Count); err != nil {
			return nil, err
		}
		return sw.Addresses(p.Start, p.Count, p.Internal)
	}))

	d.register(transport.ActionGetPublicKeys, callWithSubWallet(d, func(p rangeArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		if err := policy.ValidateAddressRange(p.Start, p.Count); err != nil {
			return nil, err
		}
		return sw.PublicKeys(p.Start, p.Count, p.Internal)
	}))

	d.register(transport.ActionCreateTransaction, callWithSubWallet(d, func(p createTxArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.CreateTransaction(p.Inputs.raw(), p.Outputs.raw(), p.Fee, p.Memo)
	}))

	d.register(transport.ActionSignTransaction, callWithSubWallet(d, func(p signTxArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.SignTransaction(p.Tx.raw(), p.PayPassword)
	}))

	d.register(transport.ActionPublishTransaction, callWithSubWallet(d, func(p txArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.PublishTransaction(p.Tx.raw())
	}))

	d.register(transport.ActionGetTransactionSignedInfo, callWithSubWallet(d, func(p txArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.TransactionSignedInfo(p.Tx.raw())
	}))

	d.register(transport.ActionConvertToRawTransaction, callWithSubWallet(d, func(p txArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.ConvertToRawTransaction(p.Tx.raw())
	}))

	d.register(transport.ActionSignDigest, callWithSubWallet(d, func(p signDigestArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.SignDigest(p.Address, p.Digest, p.PayPassword)
	}))

	d.register(transport.ActionVerifyDigest, callWithSubWallet(d, func(p verifyDigestArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return sw.VerifyDigest(p.PublicKey, p.Digest, p.Signature)
	}))

	d.register(transport.ActionSyncStart, callWithSubWallet(d, func(_ subArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return nil, sw.SyncStart()
	}))

	d.register(transport.ActionSyncStop, callWithSubWallet(d, func(_ subArgs, _ *domain.SubWalletHandle, sw contracts.SubWallet) (any, error) {
		return nil, sw.SyncStop()
	}))

	d.register(transport.ActionGetAddressQRCode, callWithParams(func(ctx context.Context, p qrCodeArgs) (any, error) {
		size := p.Size
		if size == 0 {
			size = defaultQRCodeSize
		}
		if size < minQRCodeSize || size > maxQRCodeSize {
			return nil, policyError("qr code size must be between %d and %d", minQRCodeSize, maxQRCodeSize)
		}
		return d.session.WithMasterWallet(ctx, transport.ActionGetAddressQRCode, p.MasterWalletID, func(h *domain.MasterWalletHandle, mw contracts.MasterWallet) (any, error) {
			if !slices.Contains(h.ChainIDs(), p.ChainID) {
				return nil, fmt.Errorf("%w: %s", contracts.ErrSubWalletNotFound, domain.SubWalletID(p.MasterWalletID, p.ChainID))
			}
			if !mw.IsSubWalletAddressValid(p.ChainID, p.Address) {
				return nil, policyError("address %q is not valid for %s", p.Address, domain.SubWalletID(p.MasterWalletID, p.ChainID))
			}
			return addressQRCode(p.Address, size)
		})
	}))
}

func addressQRCode(address string, size int) (models.QRCode, error) {
	png, err := qrcode.Encode(address, qrcode.Medium, size)
	if err != nil {
		return models.QRCode{}, policyError("qr code: %v", err)
	}
	return models.QRCode{
		Address:  address,
		Size:     size,
		MimeType: "image/png",
		Data:     base64.StdEncoding.EncodeToString(png),
	}, nil
}
