package config

// WatchConfig describes one source/destination pair. One Dispatcher
// instance runs per entry in the "watches" config key.
type WatchConfig struct {
	Name             string   `mapstructure:"name"`
	Hostname         string   `mapstructure:"hostname"`          // Remote host to copy to
	RemoteUser       string   `mapstructure:"remote_user"`       // SSH user (key auth only)
	KeyFile          string   `mapstructure:"key_file"`          // Private key path
	SourceDir        string   `mapstructure:"source_dir"`        // Local folder to watch
	DestinationDir   string   `mapstructure:"destination_dir"`   // Remote base path
	ArchiveDir       string   `mapstructure:"archive_dir"`       // Local archive for sent files
	Label            string   `mapstructure:"label"`             // Static label for mapping lookups
	FilePatterns     []string `mapstructure:"file_patterns"`     // Filename globs, e.g. ["*.pdf"]
	MimeTypes        []string `mapstructure:"mime_types"`        // Allowed sniffed types; empty disables the check
	TouchExisting    bool     `mapstructure:"touch_existing"`    // Re-announce files present at startup
	MkdirRemote      bool     `mapstructure:"mkdir_remote"`      // Create missing remote subfolders
	HintPattern      string   `mapstructure:"hint_pattern"`      // Regexp applied to the filename
	HintGroup        int      `mapstructure:"hint_group"`        // Capture group holding the hint
	MaxAttempts      int      `mapstructure:"max_attempts"`      // Transfer retries per event
	RetryBackoff     string   `mapstructure:"retry_backoff"`     // Initial backoff between retries
	RetryTimeout     string   `mapstructure:"retry_timeout"`     // Max elapsed time across retries
	ErrorCeiling     int      `mapstructure:"error_ceiling"`     // Persistent error count before a path is skipped
	ConcurrencyLimit int      `mapstructure:"concurrency_limit"` // Max parallel transfers
	QueueSize        int      `mapstructure:"queue_size"`        // Event buffer before backpressure
	SettlingDelay    string   `mapstructure:"settling_delay"`    // Quiet period before a file is dispatched
	NotifyEndpoint   string   `mapstructure:"notify_endpoint"`   // Optional webhook for transfer outcomes
	NotifyKey        string   `mapstructure:"notify_key"`        // Bearer key for the webhook
}
