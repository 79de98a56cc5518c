package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvFileTokenSaver writes rotated Exist tokens back into a dotenv file.
type EnvFileTokenSaver struct {
	Path string
}

// SaveTokens rewrites the token lines of the env file in place, keeping every
// other line untouched. A missing file is left alone.
func (s EnvFileTokenSaver) SaveTokens(accessToken, refreshToken string) error {
	if s.Path == "" {
		return nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read env file: %w", err)
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return fmt.Errorf("failed to stat env file: %w", err)
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, EnvExistAccessToken+"="):
			line = EnvExistAccessToken + "=" + accessToken
		case strings.HasPrefix(line, EnvExistRefreshToken+"=") && refreshToken != "":
			line = EnvExistRefreshToken + "=" + refreshToken
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan env file: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(s.Path), ".env-*")
	if err != nil {
		return fmt.Errorf("failed to create temp env file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmpFile.Write(out.Bytes()); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	if err := tmpFile.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to chmod env file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close env file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to replace env file: %w", err)
	}
	return nil
}
