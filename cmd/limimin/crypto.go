// ABOUTME: End-to-end encryption setup for limimin
// ABOUTME: Opens the mautrix crypto store beside the term registry and verifies with the recovery key

package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
)

// CryptoManager owns the crypto helper for the bot's device.
type CryptoManager struct {
	helper *cryptohelper.CryptoHelper
	logger *slog.Logger
}

// SetupCrypto enables E2EE on client. The crypto database lives in dataDir,
// named after the user so several bot accounts can share one directory.
// A stale database from a previous device is reset before use.
func SetupCrypto(ctx context.Context, client *mautrix.Client, userID, recoveryKey, dataDir string, logger *slog.Logger) (*CryptoManager, error) {
	logger = logger.With("component", "crypto")

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := cryptoDBPath(dataDir, userID)
	logger.Info("setting up encryption", "db", dbPath)

	if stale, err := checkDeviceIDMismatch(dbPath, client.DeviceID.String()); err != nil {
		logger.Debug("could not check device ID", "error", err)
	} else if stale {
		logger.Warn("device ID mismatch detected, resetting crypto database")
		if err := resetCryptoDB(dbPath); err != nil {
			return nil, err
		}
	}

	helper, err := cryptohelper.NewCryptoHelper(client, deriveStoreKey(userID), dbPath)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}

	// Outgoing messages in encrypted rooms go through the helper
	client.Crypto = helper

	cm := &CryptoManager{helper: helper, logger: logger}

	if recoveryKey == "" {
		logger.Info("encryption initialized (no recovery key - cross-signing disabled)")
		return cm, nil
	}
	if err := cm.verify(ctx, recoveryKey); err != nil {
		// Encryption still works, other devices just see us as unverified
		logger.Warn("failed to verify with recovery key", "error", err)
	} else {
		logger.Info("encryption initialized with cross-signing verification")
	}
	return cm, nil
}

func (cm *CryptoManager) verify(ctx context.Context, recoveryKey string) error {
	machine := cm.helper.Machine()
	if machine == nil {
		return errors.New("crypto machine not initialized")
	}
	if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		return fmt.Errorf("recovery key verification failed: %w", err)
	}
	return nil
}

// Close cleans up crypto resources.
func (cm *CryptoManager) Close() error {
	if cm.helper != nil {
		return cm.helper.Close()
	}
	return nil
}

func cryptoDBPath(dataDir, userID string) string {
	return filepath.Join(dataDir, fmt.Sprintf("matrix-crypto-%s.db", slugify(userID)))
}

func resetCryptoDB(dbPath string) error {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing old crypto database: %w", err)
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}

// slugify converts a Matrix user ID to a filesystem-safe string.
// Example: @limimin:matrix.org -> limimin_matrix.org
func slugify(userID string) string {
	s := userID
	if len(s) > 0 && s[0] == '@' {
		s = s[1:]
	}
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '_':
			result = append(result, c)
		case c == ':':
			result = append(result, '_')
		}
	}
	return string(result)
}

// deriveStoreKey creates a deterministic 32-byte store key from the user ID.
func deriveStoreKey(userID string) []byte {
	h := sha256.Sum256([]byte("limimin-crypto:" + userID))
	return h[:]
}

// checkDeviceIDMismatch reports whether the crypto database at dbPath was
// created for a different device than currentDeviceID.
func checkDeviceIDMismatch(dbPath, currentDeviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var storedDeviceID string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&storedDeviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return storedDeviceID != currentDeviceID, nil
}
