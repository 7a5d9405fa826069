package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "http://localhost",
		UserAgent:          "hitbrowse",
		WaitTime:           2000, // 2 seconds
		FollowRedirects:    boolPtr(true),
		MaxRedirects:       0, // loop detection only
		LegacyBatchCookies: boolPtr(false),
		Headers:            nil,
		Output:             "console",
		Verbose:            boolPtr(false),
		NoColor:            boolPtr(false),
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.BaseURL == defaults.BaseURL &&
		c.UserAgent == defaults.UserAgent &&
		c.WaitTime == defaults.WaitTime &&
		c.GetFollowRedirects() == defaults.GetFollowRedirects() &&
		c.MaxRedirects == defaults.MaxRedirects &&
		c.GetLegacyBatchCookies() == defaults.GetLegacyBatchCookies() &&
		len(c.Headers) == 0 &&
		c.Output == defaults.Output &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor()
}
