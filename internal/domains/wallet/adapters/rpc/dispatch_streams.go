package rpc

import (
	"context"
	"strings"

	"walletbridge/go-backend/internal/domains/wallet/domain"
	"walletbridge/go-backend/internal/domains/wallet/transport"
	"walletbridge/go-backend/pkg/models"
)

type subscriptionArgs struct {
	SubscriptionID string
}

func (p *subscriptionArgs) params() []param {
	return []param{required("subscriptionID", &p.SubscriptionID)}
}

type backupOpenArgs struct {
	MasterWalletID string
	Name           string
}

func (p *backupOpenArgs) params() []param {
	return []param{required("masterWalletID", &p.MasterWalletID), required("name", &p.Name)}
}

type backupStepArgs struct {
	HandleID string
	Data     string
	Size     int
}

func (p *backupStepArgs) params() []param {
	return []param{
		required("handleID", &p.HandleID),
		optional("data", &p.Data),
		optional("size", &p.Size),
	}
}

type backupHandleArgs struct {
	HandleID string
}

func (p *backupHandleArgs) params() []param {
	return []param{required("handleID", &p.HandleID)}
}

func (d *Dispatcher) registerListeners() {
	d.register(transport.ActionRegisterWalletListener, callWithCallerParams(func(ctx context.Context, p subArgs, caller Caller) (any, error) {
		if caller.Delivery == nil {
			return nil, policyError("listener registration requires a delivery channel")
		}
		id, err := d.session.Subscribe(ctx, p.MasterWalletID, p.ChainID, caller.Delivery)
		if err != nil {
			return nil, err
		}
		return models.Subscription{SubscriptionID: id, MasterWalletID: p.MasterWalletID, ChainID: p.ChainID}, nil
	}))

	d.register(transport.ActionRemoveWalletListener, callWithParams(func(ctx context.Context, p subscriptionArgs) (any, error) {
		return nil, d.session.Unsubscribe(ctx, p.SubscriptionID)
	}))
}

func (d *Dispatcher) registerBackups() {
	d.register(transport.ActionOpenBackupWriter, callWithParams(func(ctx context.Context, p backupOpenArgs) (any, error) {
		info, err := d.session.OpenBackupWriter(ctx, p.MasterWalletID, p.Name)
		if err != nil {
			return nil, err
		}
		return backupHandleView(info), nil
	}))

	d.register(transport.ActionOpenBackupReader, callWithParams(func(ctx context.Context, p backupOpenArgs) (any, error) {
		info, err := d.session.OpenBackupReader(ctx, domain.BackupDescriptor{MasterWalletID: p.MasterWalletID, Name: p.Name})
		if err != nil {
			return nil, err
		}
		return backupHandleView(info), nil
	}))

	d.register(transport.ActionBackupStep, callWithParams(func(ctx context.Context, p backupStepArgs) (any, error) {
		chunk, err := models.DecodeChunk(p.Data)
		if err != nil {
			return nil, policyError("backup data is not base64: %v", err)
		}
		if p.Size < 0 {
			return nil, policyError("backup step size must not be negative")
		}
		res, err := d.session.StepBackup(ctx, strings.TrimSpace(p.HandleID), domain.StepRequest{Chunk: chunk, Size: p.Size})
		if err != nil {
			return nil, err
		}
		return models.BackupStep{
			HandleID: p.HandleID,
			Data:     models.EncodeChunk(res.Chunk),
			Written:  res.Written,
			EOF:      res.EOF,
		}, nil
	}))

	d.register(transport.ActionCloseBackupHandle, callWithParams(func(ctx context.Context, p backupHandleArgs) (any, error) {
		return nil, d.session.CloseBackup(ctx, strings.TrimSpace(p.HandleID))
	}))

	d.register(transport.ActionGetOpenBackupHandles, callWithParams(func(ctx context.Context, _ noArgs) (any, error) {
		open, err := d.session.OpenBackupHandles(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]models.BackupHandle, 0, len(open))
		for _, info := range open {
			out = append(out, backupHandleView(info))
		}
		return out, nil
	}))
}

func backupHandleView(info domain.BackupHandleInfo) models.BackupHandle {
	return models.BackupHandle{
		HandleID:       info.ID,
		Direction:      string(info.Direction),
		MasterWalletID: info.MasterWalletID,
		Name:           info.Name,
		Closed:         info.Closed,
		Bytes:          info.Bytes,
		OpenedAt:       info.OpenedAt,
	}
}
