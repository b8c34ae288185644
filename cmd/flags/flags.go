// SPDX-License-Identifier: Apache-2.0

package flags

import (
	"strings"

	"github.com/spf13/viper"
)

func PostgresURL() string {
	return viper.GetString("PG_URL")
}

func TargetName() string {
	return viper.GetString("TARGET")
}

// TargetURL resolves the connection URL for the selected target. A
// per-target MITCH_TARGET_<NAME>_URL variable wins over the generic
// --postgres-url / MITCH_PG_URL setting.
func TargetURL() string {
	name := TargetName()
	if name != "" {
		key := "TARGET_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_URL"
		if url := viper.GetString(key); url != "" {
			return url
		}
	}
	return PostgresURL()
}
