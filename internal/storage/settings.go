package storage

import (
	"database/sql"
	"fmt"
)

// Setting keys used by the cross-poster. The tokens and the resolved DID
// make this table double as the durable session store.
const (
	SettingServiceURL     = "service-url"
	SettingHandle         = "handle"
	SettingAppPassword    = "app-password"
	SettingAccessToken    = "access-token"
	SettingRefreshToken   = "refresh-token"
	SettingDID            = "did"
	SettingTextFormat     = "text-format"
	SettingIncludeTags    = "include-tags"
	SettingDefaultPublish = "default-publish"
	SettingUseSweep       = "use-sweep"
	SettingDebugLevel     = "debug-level"
)

// GetSetting returns the value for key, or "" if the key is absent.
func GetSetting(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting inserts or updates a setting
func SetSetting(db *sql.DB, key, value string) error {
	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := db.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a setting; deleting an absent key is not an error.
func DeleteSetting(db *sql.DB, key string) error {
	if _, err := db.Exec("DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

// SeedSetting sets key to value only when the key is currently absent and
// value is non-empty. Used to bootstrap the settings store from the config
// file without clobbering values changed at runtime.
func SeedSetting(db *sql.DB, key, value string) error {
	if value == "" {
		return nil
	}
	current, err := GetSetting(db, key)
	if err != nil {
		return err
	}
	if current != "" {
		return nil
	}
	return SetSetting(db, key, value)
}
