package contracts

import (
	"encoding/json"
	"io"
	"time"

	"walletbridge/go-backend/internal/domains/rpckit"
)

// ManagerConfig is read once when the master wallet manager is created.
type ManagerConfig struct {
	RootPath      string
	Network       string
	NetworkConfig string
	LogLevel      string
}

// EngineFactory builds the root object of the external wallet engine.
type EngineFactory func(cfg ManagerConfig) (Engine, error)

type CreationMode string

const (
	ModeMnemonic          CreationMode = "mnemonic"
	ModePrivateKey        CreationMode = "private_key"
	ModeMultiSign         CreationMode = "multisign"
	ModeMultiSignPrivKey  CreationMode = "multisign_private_key"
	ModeMultiSignMnemonic CreationMode = "multisign_mnemonic"
	ModeKeystore          CreationMode = "keystore"
	ModeSeed              CreationMode = "seed"
)

// CreateParams describes a new master wallet. Which fields are read depends
// on Mode.
type CreateParams struct {
	Mode            CreationMode
	Mnemonic        string
	PassPhrase      string
	PayPassword     string
	SingleAddress   bool
	PrivateKey      string
	Cosigners       []string
	RequiredSigners int
	Compatible      bool
	Timestamp       int64
}

// ImportParams describes a wallet restored from an external secret.
type ImportParams struct {
	Mode           CreationMode
	Keystore       string
	BackupPassword string
	Mnemonic       string
	Seed           string
	PassPhrase     string
	PayPassword    string
	SingleAddress  bool
}

// Engine is the narrow surface of the external master wallet manager.
// Every method either returns a value or fails with an engine fault.
type Engine interface {
	Version() string
	SetLogLevel(level string)
	GenerateMnemonic(language string, wordCount int) (string, error)
	CreateMasterWallet(id string, params CreateParams) (MasterWallet, error)
	ImportMasterWallet(id string, params ImportParams) (MasterWallet, error)
	// LoadedMasterWallets returns wallets the engine restored from its data root.
	LoadedMasterWallets() ([]MasterWallet, error)
	DestroyMasterWallet(id string) error
	OpenBackupWriter(masterWalletID, name string) (io.WriteCloser, error)
	OpenBackupReader(masterWalletID, name string) (io.ReadCloser, error)
	Dispose() error
}

type MasterWallet interface {
	ID() string
	BasicInfo() (any, error)
	CreateSubWallet(chainID string) (SubWallet, error)
	DestroySubWallet(chainID string) error
	SubWallets() []SubWallet
	SupportedChains() []string
	ExportKeystore(backupPassword, payPassword string) (string, error)
	ExportMnemonic(payPassword string) (string, error)
	ExportSeed(payPassword string) (string, error)
	ExportPrivateKey(payPassword string) (string, error)
	VerifyPassPhrase(passPhrase, payPassword string) error
	VerifyPayPassword(payPassword string) error
	ChangePassword(oldPassword, newPassword string) error
	ResetPassword(mnemonic, passPhrase, newPassword string) error
	PubKeyInfo() (any, error)
	IsAddressValid(address string) bool
	IsSubWalletAddressValid(chainID, address string) bool
}

type SubWallet interface {
	ChainID() string
	BasicInfo() (any, error)
	Addresses(index, count int, internal bool) ([]string, error)
	PublicKeys(index, count int, internal bool) ([]string, error)
	CreateTransaction(inputs, outputs json.RawMessage, fee, memo string) (json.RawMessage, error)
	SignTransaction(tx json.RawMessage, payPassword string) (json.RawMessage, error)
	PublishTransaction(tx json.RawMessage) (string, error)
	SignDigest(address, digest, payPassword string) (string, error)
	VerifyDigest(publicKey, digest, signature string) (bool, error)
	TransactionSignedInfo(tx json.RawMessage) (any, error)
	ConvertToRawTransaction(tx json.RawMessage) (string, error)
	RegisterCallback(sink EventSink) error
	UnregisterCallback() error
	SyncStart() error
	SyncStop() error
}

// MainchainSubWallet builds governance payloads and transactions. The
// payload semantics stay inside the engine; args are passed through as-is.
type MainchainSubWallet interface {
	SubWallet
	Governance(action string, args []json.RawMessage) (any, error)
}

type SidechainSubWallet interface {
	SubWallet
	CreateWithdrawTransaction(inputs json.RawMessage, amount, mainchainAddress, fee, memo string) (json.RawMessage, error)
}

type IDChainSubWallet interface {
	SidechainSubWallet
	CreateIDTransaction(inputs, payload json.RawMessage, memo, fee string) (json.RawMessage, error)
	DIDs(index, count int, internal bool) ([]string, error)
	CIDs(index, count int, internal bool) ([]string, error)
	DIDSign(did, message, payPassword string) (string, error)
	VerifySignature(publicKey, message, signature string) (bool, error)
	PublicKeyToDID(publicKey string) (string, error)
	PublicKeyToCID(publicKey string) (string, error)
}

type EthSidechainSubWallet interface {
	SubWallet
	CreateTransfer(targetAddress, amount string, amountUnit int, gasPrice string, gasPriceUnit int, gasLimit string, nonce uint64) (json.RawMessage, error)
	CreateTransferGeneric(targetAddress, amount string, amountUnit int, gasPrice string, gasPriceUnit int, gasLimit string, data string, nonce uint64) (json.RawMessage, error)
	ExportPrivateKey(payPassword string) (string, error)
}

type BTCSubWallet interface {
	SubWallet
	LegacyAddresses(index, count int, internal bool) ([]string, error)
	CreateBTCTransaction(inputs, outputs json.RawMessage, changeAddress, feePerKB string) (json.RawMessage, error)
}

type EventKind string

const (
	EventSyncProgress         EventKind = "syncProgress"
	EventBalanceChanged       EventKind = "balanceChanged"
	EventTransactionStatus    EventKind = "transactionStatusChanged"
	EventBlockSyncStarted     EventKind = "blockSyncStarted"
	EventBlockSyncStopped     EventKind = "blockSyncStopped"
	EventAssetRegistered      EventKind = "assetRegistered"
	EventConnectStatusChanged EventKind = "connectStatusChanged"
	EventETH                  EventKind = "eth"
)

// Event is raised by a sub wallet on an engine goroutine.
type Event struct {
	Kind     EventKind      `json:"kind"`
	Payload  map[string]any `json:"payload,omitempty"`
	RaisedAt time.Time      `json:"raisedAt"`
}

// EventSink receives engine callbacks. Implementations must not block.
type EventSink interface {
	OnEvent(evt Event)
}

// DeliveryRef is the out-of-band channel a listener-bearing command carries.
// Key identifies the channel for duplicate detection.
type DeliveryRef interface {
	Key() string
	Deliver(n rpckit.Notification) error
}
