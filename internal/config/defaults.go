package config

const (
	defaultMMIFDirName      = "mmif"
	defaultArtifactsDirName = "artifacts"
	defaultDockerBinary     = "docker"
	defaultCiURLCommand     = "ci_url.sh"
	defaultDownloadLimitMiB = 1024
	defaultMediaTimeout     = 1800
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Job: Job{
			MediaRequired: true,
			Concurrency:   1,
		},
		Media: Media{
			CiURLCommand:     defaultCiURLCommand,
			DownloadLimitMiB: defaultDownloadLimitMiB,
			TimeoutSeconds:   defaultMediaTimeout,
		},
		Runtime: Runtime{
			DockerBinary: defaultDockerBinary,
			Entrypoint:   []string{"python", "cli.py"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
