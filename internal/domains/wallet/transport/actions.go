package transport

// Manager lifecycle.
const (
	ActionInit             = "init"
	ActionDestroy          = "destroy"
	ActionGetVersion       = "getVersion"
	ActionSetLogLevel      = "setLogLevel"
	ActionSetNetwork       = "setNetwork"
	ActionGenerateMnemonic = "generateMnemonic"
)

// Master wallets.
const (
	ActionCreateMasterWallet                      = "createMasterWallet"
	ActionCreateMasterWalletWithPrivKey           = "createMasterWalletWithPrivKey"
	ActionCreateMultiSignMasterWallet             = "createMultiSignMasterWallet"
	ActionCreateMultiSignMasterWalletWithPrivKey  = "createMultiSignMasterWalletWithPrivKey"
	ActionCreateMultiSignMasterWalletWithMnemonic = "createMultiSignMasterWalletWithMnemonic"
	ActionGetAllMasterWallets                     = "getAllMasterWallets"
	ActionGetMasterWallet                         = "getMasterWallet"
	ActionGetMasterWalletBasicInfo                = "getMasterWalletBasicInfo"
	ActionImportWalletWithKeystore                = "importWalletWithKeystore"
	ActionImportWalletWithMnemonic                = "importWalletWithMnemonic"
	ActionImportWalletWithSeed                    = "importWalletWithSeed"
	ActionExportWalletWithKeystore                = "exportWalletWithKeystore"
	ActionExportWalletWithMnemonic                = "exportWalletWithMnemonic"
	ActionExportWalletWithSeed                    = "exportWalletWithSeed"
	ActionExportWalletWithPrivateKey              = "exportWalletWithPrivateKey"
	ActionDestroyWallet                           = "destroyWallet"
	ActionVerifyPassPhrase                        = "verifyPassPhrase"
	ActionVerifyPayPassword                       = "verifyPayPassword"
	ActionGetPubKeyInfo                           = "getPubKeyInfo"
	ActionIsAddressValid                          = "isAddressValid"
	ActionIsSubWalletAddressValid                 = "isSubWalletAddressValid"
	ActionGetSupportedChains                      = "getSupportedChains"
	ActionChangePassword                          = "changePassword"
	ActionResetPassword                           = "resetPassword"
)

// Sub wallets.
const (
	ActionGetAllSubWallets         = "getAllSubWallets"
	ActionCreateSubWallet          = "createSubWallet"
	ActionDestroySubWallet         = "destroySubWallet"
	ActionGetAddresses             = "getAddresses"
	ActionGetPublicKeys            = "getPublicKeys"
	ActionCreateTransaction        = "createTransaction"
	ActionSignTransaction          = "signTransaction"
	ActionPublishTransaction       = "publishTransaction"
	ActionSignDigest               = "signDigest"
	ActionVerifyDigest             = "verifyDigest"
	ActionGetTransactionSignedInfo = "getTransactionSignedInfo"
	ActionConvertToRawTransaction  = "convertToRawTransaction"
	ActionSyncStart                = "syncStart"
	ActionSyncStop                 = "syncStop"
	ActionGetAddressQRCode         = "getAddressQRCode"
)

// ID chain.
const (
	ActionCreateIDTransaction = "createIdTransaction"
	ActionGetDID              = "getDID"
	ActionGetCID              = "getCID"
	ActionDIDSign             = "didSign"
	ActionVerifySignature     = "verifySignature"
	ActionGetPublicKeyDID     = "getPublicKeyDID"
	ActionGetPublicKeyCID     = "getPublicKeyCID"
)

// ETH, BTC and generic sidechains.
const (
	ActionCreateTransfer            = "createTransfer"
	ActionCreateTransferGeneric     = "createTransferGeneric"
	ActionExportETHSCPrivateKey     = "exportETHSCPrivateKey"
	ActionGetLegacyAddresses        = "getLegacyAddresses"
	ActionCreateBTCTransaction      = "createBTCTransaction"
	ActionCreateWithdrawTransaction = "createWithdrawTransaction"
)

// Listeners and backup streaming.
const (
	ActionRegisterWalletListener = "registerWalletListener"
	ActionRemoveWalletListener   = "removeWalletListener"
	ActionOpenBackupWriter       = "openBackupWriter"
	ActionOpenBackupReader       = "openBackupReader"
	ActionBackupStep             = "backupStep"
	ActionCloseBackupHandle      = "closeBackupHandle"
	ActionGetOpenBackupHandles   = "getOpenBackupHandles"
)

// GovernanceArity lists the mainchain governance actions and how many
// arguments follow the master wallet id and chain id. The arguments are
// handed to the engine untouched.
var GovernanceArity = map[string]int{
	"createDepositTransaction":                              8,
	"createVoteTransaction":                                 4,
	"generateProducerPayload":                               7,
	"generateCancelProducerPayload":                         2,
	"createRegisterProducerTransaction":                     5,
	"createUpdateProducerTransaction":                       4,
	"createCancelProducerTransaction":                       4,
	"createRetrieveDepositTransaction":                      4,
	"getOwnerPublicKey":                                     0,
	"getOwnerAddress":                                       0,
	"getOwnerDepositAddress":                                0,
	"getCRDepositAddress":                                   0,
	"generateCRInfoPayload":                                 5,
	"generateUnregisterCRPayload":                           1,
	"createRegisterCRTransaction":                           5,
	"createUpdateCRTransaction":                             4,
	"createUnregisterCRTransaction":                         4,
	"createRetrieveCRDepositTransaction":                    4,
	"CRCouncilMemberClaimNodeDigest":                        1,
	"createCRCouncilMemberClaimNodeTransaction":             4,
	"proposalOwnerDigest":                                   1,
	"proposalCRCouncilMemberDigest":                         1,
	"calculateProposalHash":                                 1,
	"createProposalTransaction":                             4,
	"proposalReviewDigest":                                  1,
	"createProposalReviewTransaction":                       4,
	"proposalTrackingOwnerDigest":                           1,
	"proposalTrackingNewOwnerDigest":                        1,
	"proposalTrackingSecretaryDigest":                       1,
	"createProposalTrackingTransaction":                     4,
	"proposalSecretaryGeneralElectionDigest":                1,
	"proposalSecretaryGeneralElectionCRCouncilMemberDigest": 1,
	"createSecretaryGeneralElectionTransaction":             4,
	"proposalChangeOwnerDigest":                             1,
	"proposalChangeOwnerCRCouncilMemberDigest":              1,
	"createProposalChangeOwnerTransaction":                  4,
	"terminateProposalOwnerDigest":                          1,
	"terminateProposalCRCouncilMemberDigest":                1,
	"createTerminateProposalTransaction":                    4,
	"reserveCustomIDOwnerDigest":                            1,
	"reserveCustomIDCRCouncilMemberDigest":                  1,
	"createReserveCustomIDTransaction":                      4,
	"receiveCustomIDOwnerDigest":                            1,
	"receiveCustomIDCRCouncilMemberDigest":                  1,
	"createReceiveCustomIDTransaction":                      4,
	"changeCustomIDFeeOwnerDigest":                          1,
	"changeCustomIDFeeCRCouncilMemberDigest":                1,
	"createChangeCustomIDFeeTransaction":                    4,
	"proposalWithdrawDigest":                                1,
	"createProposalWithdrawTransaction":                     4,
	"registerSidechainOwnerDigest":                          1,
	"registerSidechainCRCouncilMemberDigest":                1,
	"createRegisterSidechainTransaction":                    4,
}
