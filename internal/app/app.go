// Package app wires configuration, storage, vault, encryption, the
// scheduler and the service into a running application.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"counseld-go/internal/backup"
	"counseld-go/internal/config"
	"counseld-go/internal/counsel"
	"counseld-go/internal/encryption"
	"counseld-go/internal/store"
	"counseld-go/internal/temporal"
	"counseld-go/internal/vault"
)

// CounselApp holds the assembled application.
type CounselApp struct {
	Config    *config.Config
	Service   *counsel.Service
	Scheduler *backup.Scheduler
	Store     counsel.Database
	Vault     vault.Vault
	Encryptor encryption.Encryptor
	Logger    counsel.Logger

	logFile *os.File
}

// NewCounselApp loads the config at configPath and assembles the full
// dependency graph. opID tags every log line of this invocation.
func NewCounselApp(configPath, opID string) (*CounselApp, error) {
	cfg, err := config.ReadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	db, err := store.NewStoreFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("setting up encryption: %w", err)
	}

	clock := &counsel.RealClock{}
	scheduler := backup.NewScheduler(db, v, enc, clock, logger, backup.Options{
		Dir:               cfg.Backup.Dir,
		Prefix:            cfg.Backup.Prefix,
		StatePath:         filepath.Join(cfg.BaseDir, "backup_state.json"),
		QuietPeriod:       cfg.Backup.QuietPeriod(),
		TickInterval:      cfg.Backup.Tick(),
		Grace:             cfg.Backup.Grace(),
		RetentionDays:     cfg.Backup.RetentionDays,
		MaxVaultArtifacts: cfg.Backup.MaxArtifacts,
	})

	parser := temporal.New(nil)
	service := counsel.NewService(db, parser, scheduler, logger, clock)

	return &CounselApp{
		Config:    cfg,
		Service:   service,
		Scheduler: scheduler,
		Store:     db,
		Vault:     v,
		Encryptor: enc,
		Logger:    logger,
		logFile:   logFile,
	}, nil
}

// Close releases the store and the log file.
func (a *CounselApp) Close() error {
	var firstErr error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			firstErr = err
		}
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
