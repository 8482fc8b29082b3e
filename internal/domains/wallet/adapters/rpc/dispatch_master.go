package rpc

import (
	"context"
	"strings"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/wallet/domain"
	"walletbridge/go-backend/internal/domains/wallet/policy"
	"walletbridge/go-backend/internal/domains/wallet/transport"
	"walletbridge/go-backend/pkg/models"
)

type masterArgs struct {
	MasterWalletID string
}

func (p *masterArgs) params() []param {
	return []param{required("masterWalletID", &p.MasterWalletID)}
}

type createMnemonicArgs struct {
	MasterWalletID string
	Mnemonic       string
	PassPhrase     string
	PayPassword    string
	SingleAddress  bool
}

func (p *createMnemonicArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("mnemonic", &p.Mnemonic),
		required("passPhrase", &p.PassPhrase),
		required("payPassword", &p.PayPassword),
		required("singleAddress", &p.SingleAddress),
	}
}

type createPrivKeyArgs struct {
	MasterWalletID string
	PrivateKey     string
	PayPassword    string
}

func (p *createPrivKeyArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("privKey", &p.PrivateKey),
		required("payPassword", &p.PayPassword),
	}
}

type createMultiSignArgs struct {
	MasterWalletID string
	PublicKeys     stringList
	M              int
	Timestamp      int64
}

func (p *createMultiSignArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("publicKeys", &p.PublicKeys),
		required("m", &p.M),
		required("timestamp", &p.Timestamp),
	}
}

type createMultiSignPrivKeyArgs struct {
	MasterWalletID string
	PrivateKey     string
	PayPassword    string
	PublicKeys     stringList
	M              int
	Timestamp      int64
}

func (p *createMultiSignPrivKeyArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("privKey", &p.PrivateKey),
		required("payPassword", &p.PayPassword),
		required("publicKeys", &p.PublicKeys),
		required("m", &p.M),
		required("timestamp", &p.Timestamp),
	}
}

type createMultiSignMnemonicArgs struct {
	MasterWalletID string
	Mnemonic       string
	PassPhrase     string
	PayPassword    string
	PublicKeys     stringList
	M              int
	Timestamp      int64
}

func (p *createMultiSignMnemonicArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("mnemonic", &p.Mnemonic),
		required("passPhrase", &p.PassPhrase),
		required("payPassword", &p.PayPassword),
		required("publicKeys", &p.PublicKeys),
		required("m", &p.M),
		required("timestamp", &p.Timestamp),
	}
}

type importKeystoreArgs struct {
	MasterWalletID string
	Keystore       string
	BackupPassword string
	PayPassword    string
}

func (p *importKeystoreArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("keystoreContent", &p.Keystore),
		required("backupPassword", &p.BackupPassword),
		required("payPassword", &p.PayPassword),
	}
}

type importSeedArgs struct {
	MasterWalletID string
	Seed           string
	PayPassword    string
	SingleAddress  bool
	Mnemonic       string
	PassPhrase     string
}

func (p *importSeedArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("seed", &p.Seed),
		required("payPassword", &p.PayPassword),
		required("singleAddress", &p.SingleAddress),
		optional("mnemonic", &p.Mnemonic),
		optional("passPhrase", &p.PassPhrase),
	}
}

type exportKeystoreArgs struct {
	MasterWalletID string
	BackupPassword string
	PayPassword    string
}

func (p *exportKeystoreArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("backupPassword", &p.BackupPassword),
		required("payPassword", &p.PayPassword),
	}
}

type payPasswordArgs struct {
	MasterWalletID string
	PayPassword    string
}

func (p *payPasswordArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("payPassword", &p.PayPassword),
	}
}

type passPhraseArgs struct {
	MasterWalletID string
	PassPhrase     string
	PayPassword    string
}

func (p *passPhraseArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("passPhrase", &p.PassPhrase),
		required("payPassword", &p.PayPassword),
	}
}

type changePasswordArgs struct {
	MasterWalletID string
	OldPassword    string
	NewPassword    string
}

func (p *changePasswordArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("oldPassword", &p.OldPassword),
		required("newPassword", &p.NewPassword),
	}
}

type resetPasswordArgs struct {
	MasterWalletID string
	Mnemonic       string
	PassPhrase     string
	NewPassword    string
}

func (p *resetPasswordArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("mnemonic", &p.Mnemonic),
		required("passPhrase", &p.PassPhrase),
		required("newPassword", &p.NewPassword),
	}
}

type addressArgs struct {
	MasterWalletID string
	Address        string
}

func (p *addressArgs) params() []param {
	return []param{required("masterWalletID", &p.MasterWalletID), required("address", &p.Address)}
}

type subWalletAddressArgs struct {
	MasterWalletID string
	ChainID        string
	Address        string
}

func (p *subWalletAddressArgs) params() []param {
	return []param{
		required("masterWalletID", &p.MasterWalletID),
		required("chainID", &p.ChainID),
		required("address", &p.Address),
	}
}

// newWalletParams validates what every wallet-creating command shares.
func newWalletParams(id, payPassword string) (string, error) {
	id, err := policy.ValidateMasterWalletID(id)
	if err != nil {
		return "", err
	}
	return id, policy.ValidatePayPassword(payPassword)
}

func requireMnemonic(mnemonic string) error {
	if strings.TrimSpace(mnemonic) == "" {
		return policyError("mnemonic is required")
	}
	return nil
}

func (d *Dispatcher) registerMasterWallets() {
	d.register(transport.ActionCreateMasterWallet, callWithParams(func(ctx context.Context, p createMnemonicArgs) (any, error) {
		id, err := newWalletParams(p.MasterWalletID, p.PayPassword)
		if err != nil {
			return nil, err
		}
		if err := requireMnemonic(p.Mnemonic); err != nil {
			return nil, err
		}
		return d.session.CreateMasterWallet(ctx, id, contracts.CreateParams{
			Mode:          contracts.ModeMnemonic,
			Mnemonic:      p.Mnemonic,
			PassPhrase:    p.PassPhrase,
			PayPassword:   p.PayPassword,
			SingleAddress: p.SingleAddress,
		})
	}))

	d.register(transport.ActionCreateMasterWalletWithPrivKey, callWithParams(func(ctx context.Context, p createPrivKeyArgs) (any, error) {
		id, err := newWalletParams(p.MasterWalletID, p.PayPassword)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.PrivateKey) == "" {
			return nil, policyError("private key is required")
		}
		return d.session.CreateMasterWallet(ctx, id, contracts.CreateParams{
			Mode:        contracts.ModePrivateKey,
			PrivateKey:  p.PrivateKey,
			PayPassword: p.PayPassword,
		})
	}))

	d.register(transport.ActionCreateMultiSignMasterWallet, callWithParams(func(ctx context.Context, p createMultiSignArgs) (any, error) {
		id, err := policy.ValidateMasterWalletID(p.MasterWalletID)
		if err != nil {
			return nil, err
		}
		if err := policy.ValidateMultiSign(p.PublicKeys, p.M); err != nil {
			return nil, err
		}
		return d.session.CreateMasterWallet(ctx, id, contracts.CreateParams{
			Mode:            contracts.ModeMultiSign,
			Cosigners:       p.PublicKeys,
			RequiredSigners: p.M,
			Compatible:      true,
			Timestamp:       p.Timestamp,
		})
	}))

	d.register(transport.ActionCreateMultiSignMasterWalletWithPrivKey, callWithParams(func(ctx context.Context, p createMultiSignPrivKeyArgs) (any, error) {
		id, err := newWalletParams(p.MasterWalletID, p.PayPassword)
		if err != nil {
			return nil, err
		}
		if err := policy.ValidateMultiSign(p.PublicKeys, p.M); err != nil {
			return nil, err
		}
		return d.session.CreateMasterWallet(ctx, id, contracts.CreateParams{
			Mode:            contracts.ModeMultiSignPrivKey,
			PrivateKey:      p.PrivateKey,
			PayPassword:     p.PayPassword,
			Cosigners:       p.PublicKeys,
			RequiredSigners: p.M,
			Compatible:      true,
			Timestamp:       p.Timestamp,
		})
	}))

	d.register(transport.ActionCreateMultiSignMasterWalletWithMnemonic, callWithParams(func(ctx context.Context, p createMultiSignMnemonicArgs) (any, error) {
		id, err := newWalletParams(p.MasterWalletID, p.PayPassword)
		if err != nil {
			return nil, err
		}
		if err := requireMnemonic(p.Mnemonic); err != nil {
			return nil, err
		}
		if err := policy.ValidateMultiSign(p.PublicKeys, p.M); err != nil {
			return nil, err
		}
		return d.session.CreateMasterWallet(ctx, id, contracts.CreateParams{
			Mode:            contracts.ModeMultiSignMnemonic,
			Mnemonic:        p.Mnemonic,
			PassPhrase:      p.PassPhrase,
			PayPassword:     p.PayPassword,
			Cosigners:       p.PublicKeys,
			RequiredSigners: p.M,
			Compatible:      true,
			Timestamp:       p.Timestamp,
		})
	}))

	d.register(transport.ActionImportWalletWithKeystore, callWithParams(func(ctx context.Context, p importKeystoreArgs) (any, error) {
		id, err := newWalletParams(p.MasterWalletID, p.PayPassword)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Keystore) == "" {
			return nil, policyError("keystore content is required")
		}
		return d.session.ImportMasterWallet(ctx, id, contracts.ImportParams{
			Mode:           contracts.ModeKeystore,
			Keystore:       p.Keystore,
			BackupPassword: p.BackupPassword,
			PayPassword:    p.PayPassword,
		})
	}))

	d.register(transport.ActionImportWalletWithMnemonic, callWithParams(func(ctx context.Context, p createMnemonicArgs) (any, error) {
		id, err := newWalletParams(p.MasterWalletID, p.PayPassword)
		if err != nil {
			return nil, err
		}
		if err := requireMnemonic(p.Mnemonic); err != nil {
			return nil, err
		}
		return d.session.ImportMasterWallet(ctx, id, contracts.ImportParams{
			Mode:          contracts.ModeMnemonic,
			Mnemonic:      p.Mnemonic,
			PassPhrase:    p.PassPhrase,
			PayPassword:   p.PayPassword,
			SingleAddress: p.SingleAddress,
		})
	}))

	d.register(transport.ActionImportWalletWithSeed, callWithParams(func(ctx context.Context, p importSeedArgs) (any, error) {
		id, err := newWalletParams(p.MasterWalletID, p.PayPassword)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Seed) == "" {
			return nil, policyError("seed is required")
		}
		return d.session.ImportMasterWallet(ctx, id, contracts.ImportParams{
			Mode:          contracts.ModeSeed,
			Seed:          p.Seed,
			Mnemonic:      p.Mnemonic,
			PassPhrase:    p.PassPhrase,
			PayPassword:   p.PayPassword,
			SingleAddress: p.SingleAddress,
		})
	}))

	d.register(transport.ActionGetAllMasterWallets, callWithParams(func(ctx context.Context, _ noArgs) (any, error) {
		return d.session.MasterWalletIDs(ctx)
	}))

	d.register(transport.ActionGetMasterWallet, callWithParams(func(ctx context.Context, p masterArgs) (any, error) {
		return d.session.DescribeMasterWallet(ctx, p.MasterWalletID)
	}))

	d.register(transport.ActionGetMasterWalletBasicInfo, callWithMasterWallet(d, func(_ masterArgs, mw contracts.MasterWallet) (any, error) {
		return mw.BasicInfo()
	}))

	d.register(transport.ActionGetPubKeyInfo, callWithMasterWallet(d, func(_ masterArgs, mw contracts.MasterWallet) (any, error) {
		return mw.PubKeyInfo()
	}))

	d.register(transport.ActionGetSupportedChains, callWithMasterWallet(d, func(_ masterArgs, mw contracts.MasterWallet) (any, error) {
		return mw.SupportedChains(), nil
	}))

	d.register(transport.ActionExportWalletWithKeystore, callWithMasterWallet(d, func(p exportKeystoreArgs, mw contracts.MasterWallet) (any, error) {
		if err := policy.ValidatePayPassword(p.BackupPassword); err != nil {
			return nil, err
		}
		return mw.ExportKeystore(p.BackupPassword, p.PayPassword)
	}))

	d.register(transport.ActionExportWalletWithMnemonic, callWithMasterWallet(d, func(p payPasswordArgs, mw contracts.MasterWallet) (any, error) {
		return mw.ExportMnemonic(p.PayPassword)
	}))

	d.register(transport.ActionExportWalletWithSeed, callWithMasterWallet(d, func(p payPasswordArgs, mw contracts.MasterWallet) (any, error) {
		return mw.ExportSeed(p.PayPassword)
	}))

	d.register(transport.ActionExportWalletWithPrivateKey, callWithMasterWallet(d, func(p payPasswordArgs, mw contracts.MasterWallet) (any, error) {
		return mw.ExportPrivateKey(p.PayPassword)
	}))

	d.register(transport.ActionVerifyPassPhrase, callWithMasterWallet(d, func(p passPhraseArgs, mw contracts.MasterWallet) (any, error) {
		return nil, mw.VerifyPassPhrase(p.PassPhrase, p.PayPassword)
	}))

	d.register(transport.ActionVerifyPayPassword, callWithMasterWallet(d, func(p payPasswordArgs, mw contracts.MasterWallet) (any, error) {
		return nil, mw.VerifyPayPassword(p.PayPassword)
	}))

	d.register(transport.ActionChangePassword, callWithMasterWallet(d, func(p changePasswordArgs, mw contracts.MasterWallet) (any, error) {
		if err := policy.ValidatePayPassword(p.NewPassword); err != nil {
			return nil, err
		}
		return nil, mw.ChangePassword(p.OldPassword, p.NewPassword)
	}))

	d.register(transport.ActionResetPassword, callWithMasterWallet(d, func(p resetPasswordArgs, mw contracts.MasterWallet) (any, error) {
		if err := requireMnemonic(p.Mnemonic); err != nil {
			return nil, err
		}
		if err := policy.ValidatePayPassword(p.NewPassword); err != nil {
			return nil, err
		}
		return nil, mw.ResetPassword(p.Mnemonic, p.PassPhrase, p.NewPassword)
	}))

	d.register(transport.ActionIsAddressValid, callWithMasterWallet(d, func(p addressArgs, mw contracts.MasterWallet) (any, error) {
		return mw.IsAddressValid(p.Address), nil
	}))

	d.register(transport.ActionIsSubWalletAddressValid, callWithMasterWallet(d, func(p subWalletAddressArgs, mw contracts.MasterWallet) (any, error) {
		return mw.IsSubWalletAddressValid(p.ChainID, p.Address), nil
	}))

	d.register(transport.ActionDestroyWallet, callWithParams(func(ctx context.Context, p masterArgs) (any, error) {
		report, err := d.session.DestroyMasterWallet(ctx, p.MasterWalletID)
		if err != nil {
			return nil, err
		}
		return models.DestroyWalletResult{
			MasterWalletID: p.MasterWalletID,
			SubWallets:     report.SubWallets,
			Subscriptions:  report.Subscriptions,
			BackupHandles:  report.BackupHandles,
		}, nil
	}))
}

// masterArgsOf is satisfied by every argument struct that names a master
// wallet as its first field.
type masterArgsOf interface {
	masterWalletID() string
}

func (p masterArgs) masterWalletID() string           { return p.MasterWalletID }
func (p exportKeystoreArgs) masterWalletID() string   { return p.MasterWalletID }
func (p payPasswordArgs) masterWalletID() string      { return p.MasterWalletID }
func (p passPhraseArgs) masterWalletID() string       { return p.MasterWalletID }
func (p changePasswordArgs) masterWalletID() string   { return p.MasterWalletID }
func (p resetPasswordArgs) masterWalletID() string    { return p.MasterWalletID }
func (p addressArgs) masterWalletID() string          { return p.MasterWalletID }
func (p subWalletAddressArgs) masterWalletID() string { return p.MasterWalletID }

// callWithMasterWallet decodes P, resolves its master wallet under the session's
// exclusive section and runs fn against the engine object.
func callWithMasterWallet[P masterArgsOf, PP paramsOf[P]](d *Dispatcher, fn func(P, contracts.MasterWallet) (any, error)) handler {
	return func(ctx context.Context, req request) (any, error) {
		var params P
		if err := decodeParams(req.action, req.args, PP(&params)); err != nil {
			return nil, err
		}
		return d.session.WithMasterWallet(ctx, req.action, params.masterWalletID(), func(_ *domain.MasterWalletHandle, mw contracts.MasterWallet) (any, error) {
			return fn(params, mw)
		})
	}
}
