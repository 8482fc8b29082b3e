package contracts

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrorCode is the stable numeric code reported to callers.
type ErrorCode int

const (
	CodeParseJSONInAction          ErrorCode = 10000
	CodeInvalidArg                 ErrorCode = 10001
	CodeInvalidMasterWallet        ErrorCode = 10002
	CodeInvalidSubWallet           ErrorCode = 10003
	CodeCreateMasterWallet         ErrorCode = 10004
	CodeCreateSubWallet            ErrorCode = 10005
	CodeRecoverSubWallet           ErrorCode = 10006
	CodeInvalidMasterWalletManager ErrorCode = 10007
	CodeImportFromKeyStore         ErrorCode = 10008
	CodeImportFromMnemonic         ErrorCode = 10009
	CodeSubWalletInstance          ErrorCode = 10010
	CodeInvalidDIDManager          ErrorCode = 10011
	CodeInvalidDID                 ErrorCode = 10012
	CodeActionNotFound             ErrorCode = 10013
	CodeGetAllMasterWallets        ErrorCode = 10014
	CodeInvalidListener            ErrorCode = 10015
	CodeInvalidBackupHandle        ErrorCode = 10016
	CodeBackupHandleClosed         ErrorCode = 10017
	CodeBackupIO                   ErrorCode = 10018

	CodeWalletException ErrorCode = 20000
)

var codeNames = map[ErrorCode]string{
	CodeParseJSONInAction:          "ParseJsonInAction",
	CodeInvalidArg:                 "InvalidArg",
	CodeInvalidMasterWallet:        "InvalidMasterWallet",
	CodeInvalidSubWallet:           "InvalidSubWallet",
	CodeCreateMasterWallet:         "CreateMasterWallet",
	CodeCreateSubWallet:            "CreateSubWallet",
	CodeRecoverSubWallet:           "RecoverSubWallet",
	CodeInvalidMasterWalletManager: "InvalidMasterWalletManager",
	CodeImportFromKeyStore:         "ImportFromKeyStore",
	CodeImportFromMnemonic:         "ImportFromMnemonic",
	CodeSubWalletInstance:          "SubWalletInstance",
	CodeInvalidDIDManager:          "InvalidDIDManager",
	CodeInvalidDID:                 "InvalidDID",
	CodeActionNotFound:             "ActionNotFound",
	CodeGetAllMasterWallets:        "GetAllMasterWallets",
	CodeInvalidListener:            "InvalidListener",
	CodeInvalidBackupHandle:        "InvalidBackupHandle",
	CodeBackupHandleClosed:         "BackupHandleClosed",
	CodeBackupIO:                   "BackupIO",
	CodeWalletException:            "WalletException",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Registry and lifecycle failures. Callers match them with errors.Is.
var (
	ErrNotInitialized       = errors.New("master wallet manager has not been initialized")
	ErrAlreadyInitialized   = errors.New("master wallet manager is already initialized")
	ErrInvalidConfig        = errors.New("invalid manager configuration")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrMasterWalletNotFound = errors.New("master wallet not found")
	ErrSubWalletNotFound    = errors.New("sub wallet not found")
	ErrDuplicateID          = errors.New("master wallet id already exists")
	ErrUnsupportedChain     = errors.New("unsupported chain")
	ErrCreationFailed       = errors.New("engine returned no wallet")
	ErrHandleInvalidated    = errors.New("handle has been invalidated")
	ErrWrongChainKind       = errors.New("sub wallet does not support this operation")
	ErrAlreadySubscribed    = errors.New("listener already registered for sub wallet")
	ErrSubscriptionNotFound = errors.New("listener subscription not found")
	ErrBackupAlreadyOpen    = errors.New("backup writer already open for master wallet")
	ErrBackupHandleNotFound = errors.New("backup handle not found")
	ErrInvalidSource        = errors.New("invalid backup source")
	ErrBackupClosed         = errors.New("backup handle is closed")
	ErrBackupIO             = errors.New("backup i/o failure")
)

var sentinels = []error{
	ErrNotInitialized, ErrAlreadyInitialized, ErrInvalidConfig, ErrInvalidArgument,
	ErrMasterWalletNotFound, ErrSubWalletNotFound, ErrDuplicateID, ErrUnsupportedChain,
	ErrCreationFailed, ErrHandleInvalidated, ErrWrongChainKind, ErrAlreadySubscribed,
	ErrSubscriptionNotFound, ErrBackupAlreadyOpen, ErrBackupHandleNotFound, ErrInvalidSource,
	ErrBackupClosed, ErrBackupIO,
}

// Classified reports whether err already carries a sentinel, an explicit
// code or an engine fault.
func Classified(err error) bool {
	if err == nil {
		return false
	}
	var explicit *Error
	var fault *EngineFault
	if errors.As(err, &explicit) || errors.As(err, &fault) {
		return true
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Error is a classified failure with an explicit wire code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the explicit code carried by err, or fallback.
func CodeOf(err error, fallback ErrorCode) ErrorCode {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return fallback
}

// EngineFault is a failure raised by the wallet engine. Text is forwarded
// untouched; Code is the engine's own code when it reported one.
type EngineFault struct {
	Op   string
	Code int
	Text string
}

func (f *EngineFault) Error() string {
	if f.Op == "" {
		return f.Text
	}
	return f.Op + ": " + f.Text
}

func NewEngineFault(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *EngineFault
	if errors.As(err, &existing) {
		return err
	}
	return &EngineFault{Op: op, Text: err.Error()}
}

// CascadeError collects teardown failures of a best-effort destroy. The
// registry still removed everything listed in Removed.
type CascadeError struct {
	Removed  []string
	Failures map[string]error
}

func (e *CascadeError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for id, err := range e.Failures {
		parts = append(parts, id+": "+err.Error())
	}
	slices.Sort(parts)
	return "partial teardown failure: " + strings.Join(parts, "; ")
}

func (e *CascadeError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		out = append(out, err)
	}
	return out
}

func (e *CascadeError) Add(id string, err error) {
	if err == nil {
		return
	}
	if e.Failures == nil {
		e.Failures = make(map[string]error)
	}
	e.Failures[id] = err
}

// OrNil returns e only when something failed.
func (e *CascadeError) OrNil() error {
	if e == nil || len(e.Failures) == 0 {
		return nil
	}
	return e
}
