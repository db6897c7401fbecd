package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// EnvLookup resolves environment variables from the process first and a
// dotenv file second. Variables already set in the process win, matching
// dotenv's own precedence.
type EnvLookup struct {
	file map[string]string
}

// LoadEnvFile reads a dotenv file. A missing file yields an empty lookup.
func LoadEnvFile(path string) (*EnvLookup, error) {
	l := &EnvLookup{file: map[string]string{}}
	if path == "" {
		return l, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read env file %s: %v", apperrors.ErrConfiguration, path, err)
	}
	// viper lowercases keys; lookups are matched case-insensitively.
	for _, key := range v.AllKeys() {
		l.file[key] = v.GetString(key)
	}
	return l, nil
}

// Lookup has the signature of os.LookupEnv.
func (l *EnvLookup) Lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := l.file[strings.ToLower(key)]
	return v, ok
}

// Len returns the number of variables read from the file.
func (l *EnvLookup) Len() int {
	return len(l.file)
}
