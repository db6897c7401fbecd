package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// CompilerSettings is the solc profile contracts are expected to be built with.
type CompilerSettings struct {
	Version    string `mapstructure:"version" yaml:"version" json:"version"`
	Optimizer  bool   `mapstructure:"optimizer" yaml:"optimizer" json:"optimizer"`
	Runs       int    `mapstructure:"runs" yaml:"runs" json:"runs"`
	EVMVersion string `mapstructure:"evm_version" yaml:"evm_version" json:"evmVersion"`
}

// BuildInfo is a Hardhat build-info file (hh-sol-build-info-1). Input is the
// solc standard JSON input, kept raw so it can be resubmitted byte for byte.
type BuildInfo struct {
	ID              string          `json:"id"`
	SolcVersion     string          `json:"solcVersion"`
	SolcLongVersion string          `json:"solcLongVersion"`
	Input           json.RawMessage `json:"input"`
}

type standardInput struct {
	Settings struct {
		Optimizer struct {
			Enabled bool `json:"enabled"`
			Runs    int  `json:"runs"`
		} `json:"optimizer"`
		EVMVersion string `json:"evmVersion"`
	} `json:"settings"`
}

// ReadBuildInfo decodes a build-info file. The compiler output section is
// skipped.
func ReadBuildInfo(p string) (*BuildInfo, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: build-info: %v", apperrors.ErrArtifactNotFound, err)
	}
	var bi BuildInfo
	if err := json.Unmarshal(data, &bi); err != nil {
		return nil, fmt.Errorf("%w: decode build-info %s: %v", apperrors.ErrConfiguration, p, err)
	}
	if len(bi.Input) == 0 {
		return nil, fmt.Errorf("%w: build-info %s has no compiler input", apperrors.ErrConfiguration, p)
	}
	return &bi, nil
}

// Settings returns the compiler settings recorded in the build.
func (b *BuildInfo) Settings() (CompilerSettings, error) {
	var in standardInput
	if err := json.Unmarshal(b.Input, &in); err != nil {
		return CompilerSettings{}, fmt.Errorf("%w: decode compiler input: %v", apperrors.ErrConfiguration, err)
	}
	return CompilerSettings{
		Version:    b.SolcVersion,
		Optimizer:  in.Settings.Optimizer.Enabled,
		Runs:       in.Settings.Optimizer.Runs,
		EVMVersion: in.Settings.EVMVersion,
	}, nil
}

// CompilerVersion is the solc version string explorers expect, e.g.
// "v0.8.20+commit.a1b79de6".
func (b *BuildInfo) CompilerVersion() string {
	v := b.SolcLongVersion
	if v == "" {
		v = b.SolcVersion
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// CheckCompiler reports every difference between the build's settings and
// expected. Empty expected fields are not compared; runs are only compared
// when the optimizer is on.
func (b *BuildInfo) CheckCompiler(expected CompilerSettings) error {
	actual, err := b.Settings()
	if err != nil {
		return err
	}

	var diffs []string
	if expected.Version != "" && actual.Version != expected.Version {
		diffs = append(diffs, fmt.Sprintf("version %s != %s", actual.Version, expected.Version))
	}
	if actual.Optimizer != expected.Optimizer {
		diffs = append(diffs, fmt.Sprintf("optimizer %t != %t", actual.Optimizer, expected.Optimizer))
	} else if expected.Optimizer && expected.Runs != 0 && actual.Runs != expected.Runs {
		diffs = append(diffs, fmt.Sprintf("runs %d != %d", actual.Runs, expected.Runs))
	}
	if expected.EVMVersion != "" && actual.EVMVersion != "" && actual.EVMVersion != expected.EVMVersion {
		diffs = append(diffs, fmt.Sprintf("evmVersion %s != %s", actual.EVMVersion, expected.EVMVersion))
	}
	if len(diffs) > 0 {
		return fmt.Errorf("%w: compiler settings differ from profile: %s", apperrors.ErrConfiguration, strings.Join(diffs, "; "))
	}
	return nil
}
