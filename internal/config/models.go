package config

// DetectionConfig represents the configuration for the detection engine
type DetectionConfig struct {
	HeaderWeight           float64
	ContentStructureWeight float64
	SenderReputationWeight float64
	UserFeedbackWeight     float64
	LowThreshold           float64
	HighThreshold          float64
	ProviderDomains        []string
	SeedProviders          bool
	EmailIndexSize         int
}

// StoreConfig represents the configuration for the reputation/feedback store
type StoreConfig struct {
	Type          string
	SQLitePath    string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ServerConfig represents the configuration for the SMTP filter server
type ServerConfig struct {
	ListenAddress   string
	StatusHeader    string
	ScoreHeader     string
	ReasonHeader    string
	UpstreamAddress string
	UpstreamPort    int
	UpstreamEnabled bool
	SubjectPrefix   string
	ModifySubject   bool
}

// APIConfig represents the configuration for the HTTP API
type APIConfig struct {
	Enabled       bool
	ListenAddress string
}

// GetDetection returns the detection configuration
func (c *Config) GetDetection() DetectionConfig {
	return DetectionConfig{
		HeaderWeight:           c.GetFloat64("detection.weights.header"),
		ContentStructureWeight: c.GetFloat64("detection.weights.content_structure"),
		SenderReputationWeight: c.GetFloat64("detection.weights.sender_reputation"),
		UserFeedbackWeight:     c.GetFloat64("detection.weights.user_feedback"),
		LowThreshold:           c.GetFloat64("detection.thresholds.low"),
		HighThreshold:          c.GetFloat64("detection.thresholds.high"),
		ProviderDomains:        c.GetStringSlice("detection.provider_domains"),
		SeedProviders:          c.GetBool("detection.seed_providers"),
		EmailIndexSize:         c.GetInt("detection.email_index_size"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:          c.GetString("store.type"),
		SQLitePath:    c.GetString("store.sqlite_path"),
		MySQLDSN:      c.GetString("store.mysql_dsn"),
		RedisAddr:     c.GetString("store.redis_addr"),
		RedisPassword: c.GetString("store.redis_password"),
		RedisDB:       c.GetInt("store.redis_db"),
	}
}

// GetServer returns the SMTP filter server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress:   c.GetString("server.listen_address"),
		StatusHeader:    c.GetString("server.headers.status"),
		ScoreHeader:     c.GetString("server.headers.score"),
		ReasonHeader:    c.GetString("server.headers.reason"),
		UpstreamAddress: c.GetString("server.upstream_address"),
		UpstreamPort:    c.GetInt("server.upstream_port"),
		UpstreamEnabled: c.GetBool("server.upstream_enabled"),
		SubjectPrefix:   c.GetString("server.subject_prefix"),
		ModifySubject:   c.GetBool("server.modify_subject"),
	}
}

// GetAPI returns the HTTP API configuration
func (c *Config) GetAPI() APIConfig {
	return APIConfig{
		Enabled:       c.GetBool("api.enabled"),
		ListenAddress: c.GetString("api.listen_address"),
	}
}
