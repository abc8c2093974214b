package config

const (
	defaultDataDir                = "~/.local/share/stride"
	defaultEpisodesDir            = "~/.local/share/stride/episodes"
	defaultConvertedDir           = "~/.local/share/stride/converted"
	defaultLogDir                 = "~/.local/share/stride/logs"
	defaultAPIBind                = "127.0.0.1:8574"
	defaultEpisodeLimit           = 5
	defaultRefreshIntervalMinutes = 60
	defaultFeedTimeout            = 30
	defaultMaxConcurrent          = 3
	defaultDownloadTimeout        = 300
	defaultSizeTolerancePercent   = 10
	defaultAudioFormat            = "mp3"
	defaultAudioBitrate           = "128k"
	defaultMusicFolder            = "Music"
	defaultMaxStorageMB           = 1000
	defaultCleanupIntervalHours   = 24
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			EpisodesDir:  defaultEpisodesDir,
			ConvertedDir: defaultConvertedDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Podcasts: Podcasts{
			DefaultEpisodeLimit:    defaultEpisodeLimit,
			AutoDownload:           true,
			RefreshIntervalMinutes: defaultRefreshIntervalMinutes,
			FeedTimeout:            defaultFeedTimeout,
		},
		Downloads: Downloads{
			MaxConcurrent:        defaultMaxConcurrent,
			Timeout:              defaultDownloadTimeout,
			SizeTolerancePercent: defaultSizeTolerancePercent,
		},
		Audio: Audio{
			Format:  defaultAudioFormat,
			Bitrate: defaultAudioBitrate,
		},
		Device: Device{
			MusicFolder: defaultMusicFolder,
			AutoSync:    true,
		},
		Storage: Storage{
			MaxStorageMB:         defaultMaxStorageMB,
			KeepSynced:           true,
			CleanupIntervalHours: defaultCleanupIntervalHours,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
