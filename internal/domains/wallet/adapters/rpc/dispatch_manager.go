package rpc

import (
	"context"
	"strings"

	"walletbridge/go-backend/internal/domains/wallet/policy"
	"walletbridge/go-backend/internal/domains/wallet/transport"
	"walletbridge/go-backend/internal/domains/wallet/usecase"
	"walletbridge/go-backend/pkg/models"
)

const defaultMnemonicWords = 12

type initArgs struct {
	RootPath      string
	Network       string
	NetworkConfig jsonArg
	LogLevel      string
}

func (p *initArgs) params() []param {
	return []param{
		required("rootPath", &p.RootPath),
		optional("network", &p.Network),
		optional("networkConfig", &p.NetworkConfig),
		optional("logLevel", &p.LogLevel),
	}
}

type logLevelArgs struct {
	Level string
}

func (p *logLevelArgs) params() []param {
	return []param{required("level", &p.Level)}
}

type networkArgs struct {
	Network       string
	NetworkConfig jsonArg
}

func (p *networkArgs) params() []param {
	return []param{required("network", &p.Network), optional("networkConfig", &p.NetworkConfig)}
}

type mnemonicArgs struct {
	Language  string
	WordCount int
}

func (p *mnemonicArgs) params() []param {
	return []param{required("language", &p.Language), optional("wordCount", &p.WordCount)}
}

func (d *Dispatcher) registerManager() {
	d.register(transport.ActionInit, callWithParams(func(ctx context.Context, p initArgs) (any, error) {
		if strings.TrimSpace(p.RootPath) == "" {
			return nil, policyError("root path is required")
		}
		if p.Network != "" {
			if _, err := policy.ValidateNetwork(p.Network); err != nil {
				return nil, err
			}
		}
		res, err := d.session.Initialize(ctx, usecase.InitRequest{
			RootPath:      p.RootPath,
			Network:       p.Network,
			NetworkConfig: string(p.NetworkConfig),
			LogLevel:      p.LogLevel,
		})
		if err != nil {
			return nil, err
		}
		return models.InitResult{RootPath: res.RootPath, Network: res.Network, Adopted: res.Adopted}, nil
	}))

	d.register(transport.ActionDestroy, callWithParams(func(ctx context.Context, _ noArgs) (any, error) {
		report, err := d.session.Shutdown(ctx)
		if err != nil {
			return nil, err
		}
		return models.ShutdownResult{Subscriptions: report.Subscriptions, BackupHandles: report.BackupHandles}, nil
	}))

	d.register(transport.ActionGetVersion, callWithParams(func(ctx context.Context, _ noArgs) (any, error) {
		return d.session.Version(ctx)
	}))

	d.register(transport.ActionSetLogLevel, callWithParams(func(ctx context.Context, p logLevelArgs) (any, error) {
		return nil, d.session.SetLogLevel(ctx, p.Level)
	}))

	d.register(transport.ActionSetNetwork, callWithParams(func(ctx context.Context, p networkArgs) (any, error) {
		return nil, d.session.SetNetwork(ctx, p.Network, string(p.NetworkConfig))
	}))

	d.register(transport.ActionGenerateMnemonic, callWithParams(func(ctx context.Context, p mnemonicArgs) (any, error) {
		if p.WordCount == 0 {
			p.WordCount = defaultMnemonicWords
		}
		if err := policy.ValidateMnemonicWordCount(p.WordCount); err != nil {
			return nil, err
		}
		return d.session.GenerateMnemonic(ctx, p.Language, p.WordCount)
	}))
}
