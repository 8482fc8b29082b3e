package rpc

import (
	"context"
	"errors"
	"fmt"

	"walletbridge/go-backend/internal/domains/contracts"
	"walletbridge/go-backend/internal/domains/rpckit"
	"walletbridge/go-backend/internal/domains/wallet/transport"
)

var sentinelCodes = []struct {
	err  error
	code contracts.ErrorCode
}{
	{contracts.ErrNotInitialized, contracts.CodeInvalidMasterWalletManager},
	{contracts.ErrAlreadyInitialized, contracts.CodeInvalidMasterWalletManager},
	{contracts.ErrInvalidConfig, contracts.CodeInvalidArg},
	{contracts.ErrInvalidArgument, contracts.CodeInvalidArg},
	{contracts.ErrMasterWalletNotFound, contracts.CodeInvalidMasterWallet},
	{contracts.ErrSubWalletNotFound, contracts.CodeInvalidSubWallet},
	{contracts.ErrHandleInvalidated, contracts.CodeInvalidSubWallet},
	{contracts.ErrUnsupportedChain, contracts.CodeSubWalletInstance},
	{contracts.ErrWrongChainKind, contracts.CodeSubWalletInstance},
	{contracts.ErrAlreadySubscribed, contracts.CodeInvalidListener},
	{contracts.ErrSubscriptionNotFound, contracts.CodeInvalidListener},
	{contracts.ErrBackupAlreadyOpen, contracts.CodeInvalidBackupHandle},
	{contracts.ErrBackupHandleNotFound, contracts.CodeInvalidBackupHandle},
	{contracts.ErrInvalidSource, contracts.CodeInvalidBackupHandle},
	{contracts.ErrBackupClosed, contracts.CodeBackupHandleClosed},
	{contracts.ErrBackupIO, contracts.CodeBackupIO},
}

// creationCode is the code reported when the engine refuses to build the
// object a creation command asked for.
func creationCode(action string) contracts.ErrorCode {
	switch action {
	case transport.ActionCreateMasterWallet,
		transport.ActionCreateMasterWalletWithPrivKey,
		transport.ActionCreateMultiSignMasterWallet,
		transport.ActionCreateMultiSignMasterWalletWithPrivKey,
		transport.ActionCreateMultiSignMasterWalletWithMnemonic:
		return contracts.CodeCreateMasterWallet
	case transport.ActionImportWalletWithKeystore:
		return contracts.CodeImportFromKeyStore
	case transport.ActionImportWalletWithMnemonic, transport.ActionImportWalletWithSeed:
		return contracts.CodeImportFromMnemonic
	case transport.ActionCreateSubWallet:
		return contracts.CodeCreateSubWallet
	}
	return 0
}

// resultFromError maps a handler failure onto the envelope. Engine fault
// text travels in the exception field untouched.
func resultFromError(action string, err error) rpckit.Result {
	var explicit *contracts.Error
	if errors.As(err, &explicit) {
		return rpckit.DomainError(int(explicit.Code), err.Error())
	}
	var cascade *contracts.CascadeError
	if errors.As(err, &cascade) {
		return rpckit.DomainErrorWithException(int(contracts.CodeWalletException), "wallet destroyed with teardown failures", err.Error())
	}
	if errors.Is(err, contracts.ErrDuplicateID) || errors.Is(err, contracts.ErrCreationFailed) {
		code := creationCode(action)
		if code == 0 {
			code = contracts.CodeCreateMasterWallet
		}
		return rpckit.DomainError(int(code), err.Error())
	}
	for _, entry := range sentinelCodes {
		if errors.Is(err, entry.err) {
			return rpckit.DomainError(int(entry.code), err.Error())
		}
	}
	var fault *contracts.EngineFault
	if errors.As(err, &fault) {
		code := creationCode(action)
		if code == 0 {
			code = contracts.CodeWalletException
		}
		return rpckit.DomainErrorWithException(int(code), fmt.Sprintf("Action '%s' failed in wallet engine", action), fault.Text)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return rpckit.DomainError(int(contracts.CodeWalletException), err.Error())
	}
	return rpckit.DomainErrorWithException(int(contracts.CodeWalletException), fmt.Sprintf("Action '%s' failed", action), err.Error())
}

func policyError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", contracts.ErrInvalidArgument, fmt.Sprintf(format, args...))
}
