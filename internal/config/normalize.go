package config

import "strings"

func (c *Config) normalize() error {
	var err error

	pathFields := []*string{
		&c.Paths.DataDir,
		&c.Paths.EpisodesDir,
		&c.Paths.ConvertedDir,
		&c.Paths.LogDir,
	}
	for _, field := range pathFields {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		if *field, err = expandPath(trimmed); err != nil {
			return err
		}
	}

	if mount := strings.TrimSpace(c.Device.MountPath); mount != "" {
		if c.Device.MountPath, err = expandPath(mount); err != nil {
			return err
		}
	} else {
		c.Device.MountPath = ""
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Audio.Format = strings.ToLower(strings.TrimSpace(c.Audio.Format))
	c.Audio.Bitrate = strings.ToLower(strings.TrimSpace(c.Audio.Bitrate))
	c.Device.MusicFolder = strings.TrimSpace(c.Device.MusicFolder)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Device.MusicFolder == "" {
		c.Device.MusicFolder = defaultMusicFolder
	}
	if c.Podcasts.FeedTimeout <= 0 {
		c.Podcasts.FeedTimeout = defaultFeedTimeout
	}
	if c.Downloads.Timeout <= 0 {
		c.Downloads.Timeout = defaultDownloadTimeout
	}

	return nil
}
