package cfg

import "github.com/mitchellh/mapstructure"

// DecodeHook composes the mapstructure decode hooks viper.Unmarshal needs
// to turn flag/YAML strings into Severity and DriveLetter (both
// encoding.TextUnmarshaler) plus durations, matching gcsfuse's
// cfg.DecodeHook.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
