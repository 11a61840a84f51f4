package config

const (
	defaultConfigPath                     = "~/.config/flowrunner/runner.toml"
	defaultTempDir                        = "~/.local/share/flowrunner/temp"
	defaultConfigDir                      = "~/.config/flowrunner"
	defaultLogDir                         = "~/.local/share/flowrunner/logs"
	defaultStateDir                       = "~/.local/share/flowrunner"
	defaultCoordinatorBaseURL             = "http://127.0.0.1:19200"
	defaultCoordinatorRequestTimeout      = 30
	defaultLogFormat                      = "auto"
	defaultLogLevel                       = "info"
	defaultRunnerHeartbeatInterval        = 5
	defaultRunnerHeartbeatTimeout         = 120
	defaultRunnerHelloTimeout             = 30
	defaultRunnerReconnectInterval        = 5
	defaultRunnerReconnectWindow          = 120
	defaultRunnerProgressInterval         = 2
	defaultRunnerProgressThreshold        = 0.1
	defaultRunnerStatusRetryInterval      = 5
	defaultRunnerStatusRetryWindow        = 180
	defaultRunnerCompletionRetryInterval  = 30
	defaultRunnerCompletionRetryWindow    = 600
	defaultNotificationsRequestTimeoutSec = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TempDir:   defaultTempDir,
			ConfigDir: defaultConfigDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Coordinator: Coordinator{
			BaseURL:        defaultCoordinatorBaseURL,
			RequestTimeout: defaultCoordinatorRequestTimeout,
		},
		Runner: Runner{
			HeartbeatInterval:       defaultRunnerHeartbeatInterval,
			HeartbeatTimeout:        defaultRunnerHeartbeatTimeout,
			HelloTimeout:            defaultRunnerHelloTimeout,
			ReconnectInterval:       defaultRunnerReconnectInterval,
			ReconnectWindow:         defaultRunnerReconnectWindow,
			ProgressInterval:        defaultRunnerProgressInterval,
			ProgressThreshold:       defaultRunnerProgressThreshold,
			StatusRetryInterval:     defaultRunnerStatusRetryInterval,
			StatusRetryWindow:       defaultRunnerStatusRetryWindow,
			CompletionRetryInterval: defaultRunnerCompletionRetryInterval,
			CompletionRetryWindow:   defaultRunnerCompletionRetryWindow,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotificationsRequestTimeoutSec,
		},
	}
}
