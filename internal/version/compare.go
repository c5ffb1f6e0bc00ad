package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/rxtech-lab/argo-futures/pkg/errors"
)

// CheckConfigVersion checks that a config file written for configVersion can
// be run by engineVersion.
//
// Rules:
//   - A "main" engine (development build) accepts every config
//   - Major versions must match
//   - The engine minor version must be at least the config minor version,
//     since a newer config may use options an older engine does not know
//   - Patch versions and pre-release tags are ignored
//
// Examples:
//   - Engine 1.2.0, config 1.2 -> OK
//   - Engine 1.3.1, config 1.0 -> OK
//   - Engine 1.2.0, config 1.3 -> ERROR (config is newer)
//   - Engine 2.0.0, config 1.0 -> ERROR (major differs)
func CheckConfigVersion(engineVersion, configVersion string) error {
	engineVersion = strings.TrimPrefix(engineVersion, "v")

	if engineVersion == "main" {
		return nil
	}

	engine, err := semver.NewVersion(engineVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid engine version '%s'", engineVersion)
	}

	config, err := semver.NewVersion(configVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid config version '%s'", configVersion)
	}

	constraint, err := semver.NewConstraint(fmt.Sprintf("^%d.%d.0", config.Major(), config.Minor()))
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid config version '%s'", configVersion)
	}

	// pre-release engines are checked like their release
	release := semver.New(engine.Major(), engine.Minor(), engine.Patch(), "", "")

	if !constraint.Check(release) {
		if engine.Major() != config.Major() {
			return errors.Newf(errors.ErrCodeVersionMismatch,
				"major version mismatch: engine is %d.x.x but config is written for %d.x",
				engine.Major(), config.Major())
		}

		return errors.Newf(errors.ErrCodeVersionMismatch,
			"config version %d.%d needs engine %d.%d.0 or newer, engine is %s",
			config.Major(), config.Minor(), config.Major(), config.Minor(), engine.String())
	}

	return nil
}
