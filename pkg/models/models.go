package models

import "time"

type InitResult struct {
	RootPath string   `json:"rootPath"`
	Network  string   `json:"network"`
	Adopted  []string `json:"adoptedMasterWallets"`
}

type ShutdownResult struct {
	Subscriptions []string `json:"removedSubscriptions"`
	BackupHandles []string `json:"closedBackupHandles"`
}

type MasterWallet struct {
	ID        string `json:"id"`
	Network   string `json:"network,omitempty"`
	Mode      string `json:"mode,omitempty"`
	BasicInfo any    `json:"basicInfo,omitempty"`
}

type SubWallet struct {
	ID             string `json:"id"`
	MasterWalletID string `json:"masterWalletID"`
	ChainID        string `json:"chainID"`
	Kind           string `json:"kind"`
	BasicInfo      any    `json:"basicInfo,omitempty"`
}

type DestroyWalletResult struct {
	MasterWalletID string   `json:"masterWalletID"`
	SubWallets     []string `json:"removedSubWallets"`
	Subscriptions  []string `json:"removedSubscriptions"`
	BackupHandles  []string `json:"closedBackupHandles"`
}

type DestroySubWalletResult struct {
	SubWalletID   string   `json:"subWalletID"`
	Subscriptions []string `json:"removedSubscriptions"`
}

type Subscription struct {
	SubscriptionID string `json:"subscriptionID"`
	MasterWalletID string `json:"masterWalletID"`
	ChainID        string `json:"chainID"`
}

type BackupHandle struct {
	HandleID       string    `json:"handleID"`
	Direction      string    `json:"direction"`
	MasterWalletID string    `json:"masterWalletID"`
	Name           string    `json:"name"`
	Closed         bool      `json:"closed"`
	Bytes          int64     `json:"bytes"`
	OpenedAt       time.Time `json:"openedAt"`
}

// BackupStep is the outcome of one backup cursor step. Data is base64.
type BackupStep struct {
	HandleID string `json:"handleID"`
	Data     string `json:"data,omitempty"`
	Written  int    `json:"written,omitempty"`
	EOF      bool   `json:"eof"`
}

type QRCode struct {
	Address  string `json:"address"`
	Size     int    `json:"size"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type Version struct {
	Engine string `json:"engine"`
}
