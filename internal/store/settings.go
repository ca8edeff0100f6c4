package store

import (
	"context"
	"database/sql"
	"fmt"
)

// app_settings 的键名固定，值统一为 JSON 文本，由上层负责编解码。
const (
	SettingEmail    = "email_setting"
	SettingNetwork  = "network_setting"
	SettingSecurity = "security_setting"
	SettingLicense  = "license"
)

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM app_settings WHERE k = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("读取设置失败: %w", err)
	}
	return v, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE app_settings SET v = ?, updated_at = CURRENT_TIMESTAMP WHERE k = ?`, value, key)
	if err != nil {
		return fmt.Errorf("写入设置失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO app_settings(k, v) VALUES(?, ?)`, key, value); err != nil {
		return fmt.Errorf("写入设置失败: %w", err)
	}
	return nil
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM app_settings WHERE k = ?`, key); err != nil {
		return fmt.Errorf("删除设置失败: %w", err)
	}
	return nil
}
